package service

import "time"

// Poll intervals by backoff level. Success resets to level 0; each
// consecutive failure raises the level by one up to the table end.
var pollBackoffIntervals = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
	300 * time.Second,
	600 * time.Second,
}

// MaxBackoffLevel is the highest reachable backoff level.
func MaxBackoffLevel() int {
	return len(pollBackoffIntervals) - 1
}

// PollInterval maps a backoff level to its poll interval. Out-of-range
// levels clamp to the table bounds.
func PollInterval(level int) time.Duration {
	if level < 0 {
		level = 0
	}
	if level > MaxBackoffLevel() {
		level = MaxBackoffLevel()
	}
	return pollBackoffIntervals[level]
}

// NextBackoffLevel returns the level after one more failure.
func NextBackoffLevel(level int) int {
	if level >= MaxBackoffLevel() {
		return MaxBackoffLevel()
	}
	return level + 1
}
