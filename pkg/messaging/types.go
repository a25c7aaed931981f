package messaging

import (
	"time"
)

// Topics published by a lab session.
const (
	TopicStep       = "step"
	TopicEpisode    = "episode"
	TopicSession    = "session"
	TopicCheckpoint = "checkpoint"
)

// Message is one event routed through a Broker
type Message struct {
	From      string    // ID of the publishing session or agent
	To        []string  // subscriber IDs (empty means broadcast)
	Topic     string    // one of the Topic constants
	Content   any       // event payload, usually a StepEvent
	Timestamp time.Time // when the event was published
}

// StepEvent summarizes one environment step across all bodies. Per-body
// values are keyed by the body's "(e,b)" coordinate.
type StepEvent struct {
	Episode    int                `json:"episode"`
	Step       int                `json:"step"`
	Rewards    map[string]float64 `json:"rewards"`
	Loss       map[string]float64 `json:"loss,omitempty"`
	ExploreVar map[string]float64 `json:"explore_var,omitempty"`
	Done       bool               `json:"done"`
}

// Broker routes session events to subscribers
type Broker interface {
	// Publish sends a message to specified recipients
	Publish(msg Message) error
	// Subscribe registers a subscriber to receive messages
	Subscribe(id string, ch chan<- Message) error
	// Unsubscribe removes a subscription
	Unsubscribe(id string) error
}
