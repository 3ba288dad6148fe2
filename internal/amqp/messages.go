package amqp

import (
	"encoding/json"
	"time"

	"fintrack/internal/services"
)

// SyncRequestMessage asks the worker to sync one account, or every
// connected account when AccountID is empty.
type SyncRequestMessage struct {
	AccountID string    `json:"accountId,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Sync request reasons.
const (
	ReasonManual   = "manual"
	ReasonWebhook  = "webhook"
	ReasonSchedule = "schedule"
)

func NewSyncRequestMessage(accountID, reason string) *SyncRequestMessage {
	return &SyncRequestMessage{
		AccountID: accountID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// All reports whether the request targets every connected account.
func (m *SyncRequestMessage) All() bool {
	return m.AccountID == ""
}

// ToJSON converts the message to JSON bytes
func (m *SyncRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SyncRequestMessageFromJSON(data []byte) (*SyncRequestMessage, error) {
	var msg SyncRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SyncEventMessage announces the outcome of one account sync.
type SyncEventMessage struct {
	AccountID string    `json:"accountId"`
	Gateway   string    `json:"gateway"`
	Status    string    `json:"status"`
	Imported  int       `json:"imported"`
	Skipped   int       `json:"skipped"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSyncEventMessage(ev services.SyncEvent) *SyncEventMessage {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &SyncEventMessage{
		AccountID: ev.AccountID,
		Gateway:   ev.Gateway,
		Status:    ev.Status,
		Imported:  ev.Imported,
		Skipped:   ev.Skipped,
		Error:     ev.Error,
		Timestamp: ts,
	}
}

func (m *SyncEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SyncEventMessageFromJSON(data []byte) (*SyncEventMessage, error) {
	var msg SyncEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
