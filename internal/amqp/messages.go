package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message kinds carried on the ledger events queue.
const (
	KindTransactionSync = "transaction.sync"
	KindBudgetAlert     = "budget.alert"
)

// TransactionSyncPayload asks the worker to mirror one transaction to
// the statement sheet. It carries only the id, the worker fetches the
// full row from the database.
type TransactionSyncPayload struct {
	ID string `json:"id"`
}

// BudgetAlertPayload is a snapshot of a triggered budget alert.
type BudgetAlertPayload struct {
	UserID          string `json:"userId"`
	Category        string `json:"category"`
	LimitCents      int64  `json:"limitCents"`
	SpentCents      int64  `json:"spentCents"`
	ExceededByCents int64  `json:"exceededByCents"`
}

// Message is the envelope published to the exchange. Exactly one of
// the payload fields is set, selected by Kind.
type Message struct {
	Kind        string                  `json:"kind"`
	Transaction *TransactionSyncPayload `json:"transaction,omitempty"`
	Alert       *BudgetAlertPayload     `json:"alert,omitempty"`
	Timestamp   time.Time               `json:"timestamp"`
}

func NewTransactionSyncMessage(id string) *Message {
	return &Message{
		Kind:        KindTransactionSync,
		Transaction: &TransactionSyncPayload{ID: id},
		Timestamp:   time.Now(),
	}
}

func NewBudgetAlertMessage(payload BudgetAlertPayload) *Message {
	return &Message{
		Kind:      KindBudgetAlert,
		Alert:     &payload,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON creates a message from JSON bytes
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case KindTransactionSync:
		if msg.Transaction == nil {
			return nil, fmt.Errorf("message kind %q missing transaction payload", msg.Kind)
		}
	case KindBudgetAlert:
		if msg.Alert == nil {
			return nil, fmt.Errorf("message kind %q missing alert payload", msg.Kind)
		}
	default:
		return nil, fmt.Errorf("unknown message kind %q", msg.Kind)
	}
	return &msg, nil
}
