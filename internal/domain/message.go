package domain

import (
	"encoding/json"
	"time"
)

// Credentials are the long-lived OAuth client secrets plus refresh token used
// to derive a short-lived access token for one invocation.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// MessageRef identifies one message returned by a mailbox listing.
type MessageRef struct {
	ID       string
	ThreadID string
}

// Header is a single message header as returned by the provider.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MessageRecord is the unit persisted to object storage, one per message.
type MessageRecord struct {
	ID           string          `json:"id"`
	ThreadID     string          `json:"threadId,omitempty"`
	LabelIDs     []string        `json:"labelIds,omitempty"`
	Snippet      string          `json:"snippet,omitempty"`
	HistoryID    uint64          `json:"historyId,omitempty,string"`
	InternalDate int64           `json:"internalDate,omitempty,string"`
	SizeEstimate int64           `json:"sizeEstimate,omitempty"`
	Headers      []Header        `json:"headers,omitempty"`
	Body         string          `json:"body,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Summary counts the per-message outcomes of one archive run.
type Summary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RunRecord is one row of the run ledger.
type RunRecord struct {
	RunID      string
	Namespace  string
	Filter     string
	Status     string
	ErrorCode  string
	Summary    Summary
	StartedAt  time.Time
	FinishedAt time.Time
}
