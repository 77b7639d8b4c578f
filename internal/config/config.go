package config

import "time"

const (
	// DefaultPort is the default HTTP server port.
	DefaultPort = "8080"

	// DefaultDatabaseURL is empty; must be provided via flag or environment.
	DefaultDatabaseURL = ""

	// DefaultAMQPURL is empty; must be provided via flag or environment.
	DefaultAMQPURL = ""

	// DefaultBatchSize bounds how many pending conversations are pulled
	// per workspace per engine pass.
	DefaultBatchSize = 50

	// TickPeriod is the fixed distribution engine period.
	TickPeriod = 30 * time.Second

	// DefaultExchange is the topic exchange carrying conversation
	// lifecycle events.
	DefaultExchange = "conversation.events"

	// DefaultQueue is the durable queue consumed by the eligibility tracker.
	DefaultQueue = "convodist.eligibility"
)
