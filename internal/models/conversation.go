package models

import "time"

// MaxTurns bounds the history kept per conversation.
const MaxTurns = 10

// ConversationTurn is one user message and the answer it received.
type ConversationTurn struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	UserQuery string     `json:"userQuery"`
	Intent    Intent     `json:"intent"`
	Response  string     `json:"response"`
	WorkItems []WorkItem `json:"workItems,omitempty"`
	// ItemCount is the number of items the answer covered; WorkItems may
	// hold fewer.
	ItemCount int `json:"itemCount"`
	// FilterKey fingerprints the filters the answer was produced under.
	FilterKey string `json:"filterKey,omitempty"`
}

// Truncated reports whether WorkItems lost items when the turn was stored.
func (t ConversationTurn) Truncated() bool {
	return len(t.WorkItems) < t.ItemCount
}

// ConversationContext is the bounded memory of one conversation.
type ConversationContext struct {
	ConversationID string             `json:"conversationId"`
	UserID         string             `json:"userId"`
	Turns          []ConversationTurn `json:"turns"`
	GlobalFilters  *Filters           `json:"globalFilters,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}
