package models

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrDuplicateDocument is returned by AccountRepository.Create when the
// document is already on file.
var ErrDuplicateDocument = errors.New("duplicate account document")

// ErrInvalidHistory is returned when asked to persist an audit record that
// failed its own validation.
var ErrInvalidHistory = errors.New("account history failed validation")

// AccountRepository persists accounts. Lookups return a nil account and a nil
// error when nothing matches; any returned error is an infrastructure fault.
type AccountRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByDocument(ctx context.Context, document string) (*Account, error)

	// GetAllByFilter matches name as a case-insensitive substring and document
	// exactly. A blank filter places no constraint on its field.
	GetAllByFilter(ctx context.Context, name, document string) ([]*Account, error)

	Create(ctx context.Context, account *Account) error
	Update(ctx context.Context, account *Account) error

	// WithTransaction runs fn against a repository bound to a single storage
	// transaction. The transaction commits when fn returns nil and rolls back
	// otherwise. Reads by id inside fn lock the row until commit.
	WithTransaction(ctx context.Context, fn func(repo AccountRepository) error) error
}

// AccountHistoryRepository persists audit records. Records are only ever created.
type AccountHistoryRepository interface {
	Create(ctx context.Context, history *AccountHistory) error
}

// AccountHistoryReader lists the audit trail of an account, newest first.
type AccountHistoryReader interface {
	GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*AccountHistory, error)
}

// AccountHistoryStore is what the account service needs from audit storage.
type AccountHistoryStore interface {
	AccountHistoryRepository
	AccountHistoryReader
}

// EventPublisher delivers committed account events to a broker.
type EventPublisher interface {
	PublishAccountEvent(ctx context.Context, event AccountEvent) error
}
