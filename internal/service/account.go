package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abkawan/banking-accounts/internal/metrics"
	"github.com/abkawan/banking-accounts/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MsgSourceNotFound      = "source account not found"
	MsgDestinationNotFound = "destination account not found"
	MsgAccountCreated      = "account created"
)

// handles account use cases
type AccountService struct {
	accounts  models.AccountRepository
	histories models.AccountHistoryStore
	publisher models.EventPublisher
	logger    *slog.Logger
}

// creates a new AccountService; publisher and logger may be nil
func NewAccountService(accounts models.AccountRepository, histories models.AccountHistoryStore, publisher models.EventPublisher, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		accounts:  accounts,
		histories: histories,
		publisher: publisher,
		logger:    logger,
	}
}

// opens a new account for a holder whose document is not yet on file
func (s *AccountService) CreateAccount(ctx context.Context, name, document string) (res models.ResultOf[*models.Account], err error) {
	defer s.observe("create_account", time.Now(), &res.Result, &err)

	account := models.NewAccount(name, document)
	if !account.IsValid() {
		return models.FailOf[*models.Account](account.Notifications(), models.MsgAccountCreationFailed), nil
	}

	existing, err := s.accounts.GetByDocument(ctx, document)
	if err != nil {
		return res, fmt.Errorf("failed to look up document: %w", err)
	}
	if existing != nil {
		return models.FailMessageOf[*models.Account](models.MsgDuplicateDocument), nil
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		// a concurrent create can win the race past the lookup above
		if errors.Is(err, models.ErrDuplicateDocument) {
			return models.FailMessageOf[*models.Account](models.MsgDuplicateDocument), nil
		}
		return res, fmt.Errorf("failed to create account: %w", err)
	}

	s.publish(ctx, models.NewAccountCreatedEvent(account))
	return models.OkOf(account, MsgAccountCreated), nil
}

// retrieves an account by ID; a missing account is a failed result
func (s *AccountService) GetByID(ctx context.Context, id uuid.UUID) (res models.ResultOf[*models.Account], err error) {
	defer s.observe("get_account", time.Now(), &res.Result, &err)

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return res, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return models.FailMessageOf[*models.Account](models.MsgAccountNotFound), nil
	}
	return models.OkOf(account, ""), nil
}

// lists accounts matching the name substring and exact document; blanks match everything
func (s *AccountService) GetByFilter(ctx context.Context, name, document string) (res models.ResultOf[[]*models.Account], err error) {
	defer s.observe("filter_accounts", time.Now(), &res.Result, &err)

	accounts, err := s.accounts.GetAllByFilter(ctx, name, document)
	if err != nil {
		return res, fmt.Errorf("failed to filter accounts: %w", err)
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	return models.OkOf(accounts, ""), nil
}

// moves amount between two accounts inside a single repository transaction
func (s *AccountService) Transfer(ctx context.Context, sourceID, destinationID uuid.UUID, amount decimal.Decimal) (res models.Result, err error) {
	defer s.observe("transfer", time.Now(), &res, &err)

	if sourceID == destinationID {
		return models.Fail([]models.Notification{{Key: "destination_account_id", Message: models.MsgSameAccount}}, models.MsgTransferFailed), nil
	}

	var source, destination *models.Account
	err = s.accounts.WithTransaction(ctx, func(repo models.AccountRepository) error {
		// lock rows in a stable order so opposing transfers cannot deadlock
		first, second := sourceID, destinationID
		if bytes.Compare(first[:], second[:]) > 0 {
			first, second = second, first
		}
		a, err := repo.GetByID(ctx, first)
		if err != nil {
			return fmt.Errorf("failed to load account %s: %w", first, err)
		}
		b, err := repo.GetByID(ctx, second)
		if err != nil {
			return fmt.Errorf("failed to load account %s: %w", second, err)
		}
		source, destination = a, b
		if first != sourceID {
			source, destination = b, a
		}

		if source == nil {
			res = models.FailMessage(MsgSourceNotFound)
			return nil
		}
		if destination == nil {
			res = models.FailMessage(MsgDestinationNotFound)
			return nil
		}

		res = source.Transfer(amount, destination)
		if !res.Success {
			return nil
		}

		if err := repo.Update(ctx, source); err != nil {
			return fmt.Errorf("failed to update source account: %w", err)
		}
		if err := repo.Update(ctx, destination); err != nil {
			return fmt.Errorf("failed to update destination account: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Result{}, fmt.Errorf("transfer aborted: %w", err)
	}

	if res.Success {
		metrics.TransferredAmount.Add(amount.InexactFloat64())
		s.publish(ctx, models.NewTransferCompletedEvent(source, destination, amount))
	}
	return res, nil
}

// deactivates the account holding document and records who did it
func (s *AccountService) DeactivateByDocument(ctx context.Context, document, responsibleUser string) (res models.Result, err error) {
	defer s.observe("deactivate_account", time.Now(), &res, &err)

	contract := models.Requires().
		IsNotBlank(document, "document", "document must not be empty").
		IsNotBlank(responsibleUser, "responsible_user", "responsible user must not be empty")
	if !contract.IsValid() {
		return models.Fail(contract.Notifications(), models.MsgAccountDeactivationFailed), nil
	}

	// the read, the write and the audit record share one transaction so a
	// concurrent transfer cannot be overwritten by a stale balance
	var history *models.AccountHistory
	err = s.accounts.WithTransaction(ctx, func(repo models.AccountRepository) error {
		account, err := repo.GetByDocument(ctx, document)
		if err != nil {
			return fmt.Errorf("failed to get account: %w", err)
		}
		if account == nil {
			res = models.FailMessage(models.MsgAccountNotFound)
			return nil
		}

		// the audit record is checked before anything is written so a bad record
		// never leaves a deactivated account without its trail
		history = models.NewAccountHistory(account.ID(), account.Document(), models.ActionDeactivation, responsibleUser)
		if !history.IsValid() {
			res = models.Fail(history.Notifications(), models.MsgAccountDeactivationFailed)
			return nil
		}

		account.Deactivate()
		if err := repo.Update(ctx, account); err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}
		if err := s.histories.Create(ctx, history); err != nil {
			return fmt.Errorf("failed to create account history: %w", err)
		}
		res = models.Ok(models.MsgAccountDeactivated)
		return nil
	})
	if err != nil {
		return models.Result{}, fmt.Errorf("deactivation aborted: %w", err)
	}
	if !res.Success {
		return res, nil
	}

	s.publish(ctx, models.NewAccountDeactivatedEvent(history))
	return res, nil
}

// retrieves the audit trail of an account, newest first
func (s *AccountService) GetHistory(ctx context.Context, accountID uuid.UUID, limit, offset int) (res models.ResultOf[[]*models.AccountHistory], err error) {
	defer s.observe("account_history", time.Now(), &res.Result, &err)

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return res, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return models.FailMessageOf[[]*models.AccountHistory](models.MsgAccountNotFound), nil
	}

	histories, err := s.histories.GetByAccountID(ctx, accountID, limit, offset)
	if err != nil {
		return res, fmt.Errorf("failed to get account history: %w", err)
	}
	if histories == nil {
		histories = []*models.AccountHistory{}
	}
	return models.OkOf(histories, ""), nil
}

// publish hands the event to the broker. The change is already committed, so
// a broker failure is logged rather than returned.
func (s *AccountService) publish(ctx context.Context, event models.AccountEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAccountEvent(ctx, event); err != nil {
		metrics.EventsPublished.WithLabelValues(string(event.Type), metrics.OutcomeError).Inc()
		s.logger.Error("failed to publish account event",
			"event_id", event.ID, "type", event.Type, "account_id", event.AccountID, "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues(string(event.Type), metrics.OutcomeOK).Inc()
}

func (s *AccountService) observe(op string, start time.Time, res *models.Result, err *error) {
	outcome := metrics.OutcomeOK
	switch {
	case *err != nil:
		outcome = metrics.OutcomeError
		s.logger.Error("account operation failed", "operation", op, "error", *err)
	case !res.Success:
		outcome = metrics.OutcomeRejected
		s.logger.Info("account operation rejected",
			"operation", op, "message", res.Message, "notifications", len(res.Notifications))
	}
	metrics.Observe(op, outcome, time.Since(start).Seconds())
}
