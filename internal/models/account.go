package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InitialBalance is credited to every new account.
var InitialBalance = decimal.RequireFromString("1000.00")

const (
	MsgAccountCreationFailed = "account creation failed"
	MsgDuplicateDocument     = "an account already exists for this document"
	MsgAccountNotFound       = "account not found"
	MsgTransferFailed        = "transfer failed"
	MsgTransferCompleted     = "transfer completed"
	MsgSameAccount           = "source and destination must differ"
	MsgDestinationRequired   = "destination account is required"
)

// Account is the aggregate holding a holder's balance and activation state.
// Balance moves only through Transfer and UpdateBalance.
type Account struct {
	Notifiable

	id        uuid.UUID
	name      string
	document  string
	balance   decimal.Decimal
	createdAt time.Time
	isActive  bool
}

// NewAccount opens an active account with the initial balance. The returned
// account may be invalid; check IsValid before persisting it.
func NewAccount(name, document string) *Account {
	a := &Account{
		id:        uuid.New(),
		name:      name,
		document:  document,
		balance:   InitialBalance,
		createdAt: time.Now().UTC(),
		isActive:  true,
	}
	a.Validate()
	return a
}

// RestoreAccount rebuilds an account read back from storage. No validation runs.
func RestoreAccount(id uuid.UUID, name, document string, balance decimal.Decimal, createdAt time.Time, isActive bool) *Account {
	return &Account{
		id:        id,
		name:      name,
		document:  document,
		balance:   balance,
		createdAt: createdAt.UTC(),
		isActive:  isActive,
	}
}

func (a *Account) ID() uuid.UUID            { return a.id }
func (a *Account) Name() string             { return a.name }
func (a *Account) Document() string         { return a.document }
func (a *Account) Balance() decimal.Decimal { return a.balance }
func (a *Account) CreatedAt() time.Time     { return a.createdAt }
func (a *Account) IsActive() bool           { return a.isActive }

// Validate records a notification for each blank field.
func (a *Account) Validate() {
	a.AddNotifications(Requires().
		IsNotBlank(a.name, "account.name", "name must not be empty").
		IsNotBlank(a.document, "account.document", "document must not be empty").
		Notifications())
}

// Deactivate is one-way and idempotent.
func (a *Account) Deactivate() {
	a.isActive = false
}

// UpdateBalance adds amount to the balance. It performs no activation or
// sufficiency checks; those belong to Transfer.
func (a *Account) UpdateBalance(amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	a.balance = a.balance.Add(amount)
}

// Transfer moves amount from a to destination. All rules are checked before
// anything is touched; on failure neither balance changes and every broken
// rule is reported. A missing destination or a transfer to a itself is
// refused before the other rules run.
func (a *Account) Transfer(amount decimal.Decimal, destination *Account) Result {
	if destination == nil {
		return Fail([]Notification{{Key: "destination_account_id", Message: MsgDestinationRequired}}, MsgTransferFailed)
	}
	if destination == a || destination.id == a.id {
		return Fail([]Notification{{Key: "destination_account_id", Message: MsgSameAccount}}, MsgTransferFailed)
	}

	contract := Requires().
		IsTrue(a.isActive, "source.is_active", "source account must be active").
		IsGreaterOrEqual(a.balance, amount, "source.balance", "insufficient balance").
		IsGreaterThan(amount, decimal.Zero, "amount", "amount must be greater than zero").
		IsTrue(destination.isActive, "destination.is_active", "destination account must be active")

	if !contract.IsValid() {
		return Fail(contract.Notifications(), MsgTransferFailed)
	}

	a.UpdateBalance(amount.Neg())
	destination.UpdateBalance(amount)
	return Ok(MsgTransferCompleted)
}
