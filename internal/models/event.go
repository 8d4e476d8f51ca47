package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountEventType string

const (
	// AccountCreated is emitted once a new account is persisted.
	AccountCreated AccountEventType = "account.created"

	// TransferCompleted is emitted after both sides of a transfer are persisted.
	TransferCompleted AccountEventType = "transfer.completed"

	// AccountDeactivated is emitted after a deactivation and its audit record are persisted.
	AccountDeactivated AccountEventType = "account.deactivated"
)

// AccountEvent notifies downstream consumers of a committed account change.
// Amount is a fixed two-place decimal string so it survives both JSON and BSON.
type AccountEvent struct {
	ID              string           `json:"id" bson:"_id"`
	Type            AccountEventType `json:"type" bson:"type"`
	AccountID       string           `json:"account_id" bson:"account_id"`
	CounterpartyID  string           `json:"counterparty_id,omitempty" bson:"counterparty_id,omitempty"`
	Document        string           `json:"document,omitempty" bson:"document,omitempty"`
	Amount          string           `json:"amount,omitempty" bson:"amount,omitempty"`
	ResponsibleUser string           `json:"responsible_user,omitempty" bson:"responsible_user,omitempty"`
	OccurredAt      time.Time        `json:"occurred_at" bson:"occurred_at"`
}

func NewAccountCreatedEvent(a *Account) AccountEvent {
	return AccountEvent{
		ID:         uuid.New().String(),
		Type:       AccountCreated,
		AccountID:  a.ID().String(),
		Document:   a.Document(),
		Amount:     a.Balance().StringFixed(2),
		OccurredAt: a.CreatedAt(),
	}
}

func NewTransferCompletedEvent(source, destination *Account, amount decimal.Decimal) AccountEvent {
	return AccountEvent{
		ID:             uuid.New().String(),
		Type:           TransferCompleted,
		AccountID:      source.ID().String(),
		CounterpartyID: destination.ID().String(),
		Amount:         amount.StringFixed(2),
		OccurredAt:     time.Now().UTC(),
	}
}

func NewAccountDeactivatedEvent(h *AccountHistory) AccountEvent {
	return AccountEvent{
		ID:              uuid.New().String(),
		Type:            AccountDeactivated,
		AccountID:       h.AccountID().String(),
		Document:        h.Document(),
		ResponsibleUser: h.ResponsibleUser(),
		OccurredAt:      h.ActionDate(),
	}
}
