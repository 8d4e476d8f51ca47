package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	// ActionDeactivation is recorded when an account is deactivated.
	ActionDeactivation = "Deactivation"

	MsgAccountDeactivated        = "account deactivated"
	MsgAccountDeactivationFailed = "account deactivation failed"
)

// AccountHistory is an audit record of an action taken against an account.
// It is never modified after construction.
type AccountHistory struct {
	Notifiable

	id              uuid.UUID
	accountID       uuid.UUID
	document        string
	action          string
	responsibleUser string
	actionDate      time.Time
}

// NewAccountHistory stamps the record with the current UTC time and validates
// it. Invalid records are returned so callers can inspect the notifications.
func NewAccountHistory(accountID uuid.UUID, document, action, responsibleUser string) *AccountHistory {
	h := &AccountHistory{
		id:              uuid.New(),
		accountID:       accountID,
		document:        document,
		action:          action,
		responsibleUser: responsibleUser,
		actionDate:      time.Now().UTC(),
	}
	h.AddNotifications(Requires().
		IsNotBlank(document, "history.document", "document must not be empty").
		IsNotBlank(action, "history.action", "action must not be empty").
		IsNotBlank(responsibleUser, "history.responsible_user", "responsible user must not be empty").
		Notifications())
	return h
}

// RestoreAccountHistory rebuilds a record read back from storage.
func RestoreAccountHistory(id, accountID uuid.UUID, document, action, responsibleUser string, actionDate time.Time) *AccountHistory {
	return &AccountHistory{
		id:              id,
		accountID:       accountID,
		document:        document,
		action:          action,
		responsibleUser: responsibleUser,
		actionDate:      actionDate.UTC(),
	}
}

func (h *AccountHistory) ID() uuid.UUID           { return h.id }
func (h *AccountHistory) AccountID() uuid.UUID    { return h.accountID }
func (h *AccountHistory) Document() string        { return h.document }
func (h *AccountHistory) Action() string          { return h.action }
func (h *AccountHistory) ResponsibleUser() string { return h.responsibleUser }
func (h *AccountHistory) ActionDate() time.Time   { return h.actionDate }
