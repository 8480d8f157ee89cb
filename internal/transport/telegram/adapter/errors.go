package adapter

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

// telebot reports unrecognised API errors as "telegram: <description> (<code>)".
var genericCodeRe = regexp.MustCompile(`\((\d{3})\)\s*$`)

// classify wraps a telebot error as a transient or permanent delivery error.
// Cancellation is passed through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return kit.Transient(err, time.Duration(flood.RetryAfter)*time.Second)
	}
	var floodPtr *tele.FloodError
	if errors.As(err, &floodPtr) && floodPtr != nil {
		return kit.Transient(err, time.Duration(floodPtr.RetryAfter)*time.Second)
	}

	var group tele.GroupError
	if errors.As(err, &group) {
		// Chat was migrated to a supergroup; the stored id is dead.
		return kit.Permanent(err)
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return byCode(err, apiErr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return kit.Transient(err, 0)
	}

	if m := genericCodeRe.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return byCode(err, code)
	}
	// Unknown failures (connection resets, decoding) are worth a retry.
	return kit.Transient(err, 0)
}

func byCode(err error, code int) error {
	switch {
	case code == 429 || code >= 500:
		return kit.Transient(err, 0)
	case code >= 400:
		return kit.Permanent(err)
	default:
		return kit.Transient(err, 0)
	}
}
