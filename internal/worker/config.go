// Package worker consumes background jobs published by the API.
package worker

import "time"

// Config holds configuration for the job consumer.
type Config struct {
	// ProjectID is the Google Cloud project hosting the subscription.
	ProjectID string

	// SubscriptionName is the Pub/Sub subscription carrying jobs.
	SubscriptionName string

	// MaxOutstandingMessages bounds concurrent jobs.
	// Default: 10
	MaxOutstandingMessages int

	// MaxExtension is the longest a message lease is extended.
	// Default: 10 minutes
	MaxExtension time.Duration

	// JobTimeout bounds a single job.
	// Default: 60 seconds
	JobTimeout time.Duration
}

// DefaultConfig returns the default consumer configuration.
func DefaultConfig() Config {
	return Config{
		MaxOutstandingMessages: 10,
		MaxExtension:           10 * time.Minute,
		JobTimeout:             60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxOutstandingMessages <= 0 {
		c.MaxOutstandingMessages = def.MaxOutstandingMessages
	}
	if c.MaxExtension <= 0 {
		c.MaxExtension = def.MaxExtension
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = def.JobTimeout
	}
	return c
}
