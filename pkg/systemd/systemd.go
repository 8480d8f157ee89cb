// Package systemd reports service state to systemd when running as a
// Type=notify unit. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

var watchdogInterval = daemon.SdWatchdogEnabled

// Ready tells systemd start-up finished. It reports whether the message was
// delivered.
func Ready() bool { return send(daemon.SdNotifyReady) }

// Stopping tells systemd shutdown began.
func Stopping() bool { return send(daemon.SdNotifyStopping) }

// Reloading marks a config reload; call Ready when it is applied.
func Reloading() bool { return send(daemon.SdNotifyReloading) }

func send(state string) bool {
	ok, err := notify(false, state)
	return ok && err == nil
}

// Watchdog pings systemd at half the WatchdogSec interval until ctx is done.
// It returns at once when the unit has no watchdog configured.
func Watchdog(ctx context.Context) {
	every, err := watchdogInterval(false)
	if err != nil || every <= 0 {
		return
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			send(daemon.SdNotifyWatchdog)
		}
	}
}
