package models

import "time"

// FeedbackKind: в какое кольцо попала запись.
type FeedbackKind string

const (
	FeedbackReject  FeedbackKind = "reject"
	FeedbackError   FeedbackKind = "error"
	FeedbackSuccess FeedbackKind = "success"
)

// FeedbackEntry: итог одного намерения для решающего источника.
type FeedbackEntry struct {
	At      time.Time    `json:"at"`
	Kind    FeedbackKind `json:"kind"`
	Type    IntentType   `json:"type"`
	Symbol  string       `json:"symbol"`
	Side    Side         `json:"side,omitempty"`
	Reason  string       `json:"reason,omitempty"`
	Detail  string       `json:"detail,omitempty"`
	OrderID string       `json:"order_id,omitempty"`
}

// FeedbackSnapshot: три кольца, от новых к старым.
type FeedbackSnapshot struct {
	Rejects   []FeedbackEntry `json:"recent_rejects"`
	Errors    []FeedbackEntry `json:"recent_errors"`
	Successes []FeedbackEntry `json:"recent_successes"`
}
