package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateAccountRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Document string `json:"document" validate:"required,max=20"`
}

type TransferRequest struct {
	SourceAccountID      string          `json:"source_account_id" validate:"required,uuid"`
	DestinationAccountID string          `json:"destination_account_id" validate:"required,uuid"`
	Amount               decimal.Decimal `json:"amount"`
}

type DeactivateAccountRequest struct {
	Document        string `json:"document" validate:"required,max=20"`
	ResponsibleUser string `json:"responsible_user" validate:"required,max=50"`
}

// AccountResponse is the API view of an account. Balance is rendered with
// exactly two decimal places.
type AccountResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Document  string    `json:"document"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

func NewAccountResponse(a *Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID().String(),
		Name:      a.Name(),
		Document:  a.Document(),
		Balance:   a.Balance().StringFixed(2),
		CreatedAt: a.CreatedAt(),
		IsActive:  a.IsActive(),
	}
}

type AccountHistoryResponse struct {
	ID              string    `json:"id"`
	AccountID       string    `json:"account_id"`
	Document        string    `json:"document"`
	Action          string    `json:"action"`
	ResponsibleUser string    `json:"responsible_user"`
	ActionDate      time.Time `json:"action_date"`
}

func NewAccountHistoryResponse(h *AccountHistory) AccountHistoryResponse {
	return AccountHistoryResponse{
		ID:              h.ID().String(),
		AccountID:       h.AccountID().String(),
		Document:        h.Document(),
		Action:          h.Action(),
		ResponsibleUser: h.ResponsibleUser(),
		ActionDate:      h.ActionDate(),
	}
}
