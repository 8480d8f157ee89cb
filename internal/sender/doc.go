// Package sender delivers reminder payloads through a transport.Messenger.
//
// Text is escaped for its parse mode, split into chunks that fit a Telegram
// message and sent in order. Every chunk (and every poll) is retried on
// transient failures with a fixed backoff schedule; permanent failures and
// cancellation stop immediately.
package sender
