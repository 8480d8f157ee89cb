// Package logx is remindbot's structured logger, a thin layer over zerolog.
//
// A Logger obtained from Service follows every Service.Apply, so a config
// reload changes level and sinks for all components at once. Lines go to
// the console, to an optional JSON file and, at or above a minimum level,
// to a Telegram ops chat.
package logx
