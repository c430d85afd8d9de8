package middleware

import (
	"golang.org/x/time/rate"
)

// RateLimit: per-connection message limits
type RateLimit struct {
	MaxMessageSize    int64
	MessagesPerSecond float64
	BurstSize         int
}

// NewRateLimit: creates a new RateLimit configuration
func NewRateLimit(maxMessageSize int64, messagesPerSecond float64, burstSize int) *RateLimit {
	return &RateLimit{
		MaxMessageSize:    maxMessageSize,
		MessagesPerSecond: messagesPerSecond,
		BurstSize:         burstSize,
	}
}

// NewMessageLimiter: token bucket for one connection, unlimited when MessagesPerSecond is 0
func (rl *RateLimit) NewMessageLimiter() *rate.Limiter {
	if rl.MessagesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rl.MessagesPerSecond), rl.BurstSize)
}
