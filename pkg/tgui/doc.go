// Package tgui provides small Telegram text helpers:
//   - HTML builders with automatic escaping
//   - Markdown and MarkdownV2 escaping for user-supplied text
//   - A reply builder for bot command responses
package tgui
