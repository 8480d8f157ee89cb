package adapter

import "time"

type Config struct {
	Token       string
	PollTimeout time.Duration
	// RatePerSec caps outgoing API calls (send, poll, admin lookups).
	RatePerSec float64
	// AdminCacheTTL bounds how long chat admin lookups are reused.
	AdminCacheTTL time.Duration
}

const (
	defaultRatePerSec    = 25
	defaultAdminCacheTTL = 5 * time.Minute
	adminCacheSize       = 1024
)
