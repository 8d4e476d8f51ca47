package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/abkawan/banking-accounts/internal/db"
	"github.com/abkawan/banking-accounts/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockAccounts wraps the in-memory repository; set a func field to override one call.
type MockAccounts struct {
	*db.MemoryAccounts
	CreateFunc        func(ctx context.Context, account *models.Account) error
	GetByDocumentFunc func(ctx context.Context, document string) (*models.Account, error)
	createCalls       int
}

func newMockAccounts() *MockAccounts {
	return &MockAccounts{MemoryAccounts: db.NewMemoryAccounts()}
}

func (m *MockAccounts) Create(ctx context.Context, account *models.Account) error {
	m.createCalls++
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return m.MemoryAccounts.Create(ctx, account)
}

func (m *MockAccounts) GetByDocument(ctx context.Context, document string) (*models.Account, error) {
	if m.GetByDocumentFunc != nil {
		return m.GetByDocumentFunc(ctx, document)
	}
	return m.MemoryAccounts.GetByDocument(ctx, document)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.AccountEvent
	err    error
}

func (p *recordingPublisher) PublishAccountEvent(ctx context.Context, event models.AccountEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []models.AccountEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.AccountEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustCreate(t *testing.T, svc *AccountService, name, document string) *models.Account {
	t.Helper()
	res, err := svc.CreateAccount(context.Background(), name, document)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	if !res.Success {
		t.Fatalf("create %s rejected: %+v", name, res.Notifications)
	}
	return res.Data
}

func balanceOf(t *testing.T, svc *AccountService, id uuid.UUID) decimal.Decimal {
	t.Helper()
	res, err := svc.GetByID(context.Background(), id)
	if err != nil || !res.Success {
		t.Fatalf("get %s: res=%+v err=%v", id, res.Result, err)
	}
	return res.Data.Balance()
}

func TestCreateAccount(t *testing.T) {
	accounts := newMockAccounts()
	pub := &recordingPublisher{}
	svc := NewAccountService(accounts, db.NewMemoryHistories(), pub, nil)

	acc := mustCreate(t, svc, "Alice", "123")
	if !acc.Balance().Equal(models.InitialBalance) {
		t.Errorf("expected initial balance %s, got %s", models.InitialBalance, acc.Balance())
	}
	if got := pub.types(); len(got) != 1 || got[0] != models.AccountCreated {
		t.Errorf("expected one account.created event, got %v", got)
	}

	stored, err := accounts.MemoryAccounts.GetByID(context.Background(), acc.ID())
	if err != nil || stored == nil {
		t.Fatalf("expected stored account, got %v, %v", stored, err)
	}
}

func TestCreateAccountDuplicateDocument(t *testing.T) {
	accounts := newMockAccounts()
	svc := NewAccountService(accounts, db.NewMemoryHistories(), nil, nil)
	mustCreate(t, svc, "Alice", "123")
	accounts.createCalls = 0

	res, err := svc.CreateAccount(context.Background(), "Other", "123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Message != models.MsgDuplicateDocument {
		t.Errorf("expected duplicate rejection, got %+v", res.Result)
	}
	if res.Data != nil {
		t.Error("expected no payload on failure")
	}
	if accounts.createCalls != 0 {
		t.Errorf("expected Create not to be called, got %d calls", accounts.createCalls)
	}
}

func TestCreateAccountRaceOnDocument(t *testing.T) {
	accounts := newMockAccounts()
	accounts.CreateFunc = func(ctx context.Context, account *models.Account) error {
		return models.ErrDuplicateDocument
	}
	svc := NewAccountService(accounts, db.NewMemoryHistories(), nil, nil)

	res, err := svc.CreateAccount(context.Background(), "Alice", "123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Message != models.MsgDuplicateDocument {
		t.Errorf("expected duplicate rejection, got %+v", res.Result)
	}
}

func TestCreateAccountInvalid(t *testing.T) {
	accounts := newMockAccounts()
	svc := NewAccountService(accounts, db.NewMemoryHistories(), nil, nil)

	res, err := svc.CreateAccount(context.Background(), "", " ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Message != models.MsgAccountCreationFailed {
		t.Errorf("expected creation failure, got %+v", res.Result)
	}
	if len(res.Notifications) != 2 {
		t.Errorf("expected 2 notifications, got %+v", res.Notifications)
	}
	if accounts.createCalls != 0 {
		t.Error("invalid account must not be persisted")
	}
}

func TestCreateAccountPersistenceError(t *testing.T) {
	boom := errors.New("disk full")
	accounts := newMockAccounts()
	accounts.CreateFunc = func(ctx context.Context, account *models.Account) error { return boom }
	svc := NewAccountService(accounts, db.NewMemoryHistories(), nil, nil)

	_, err := svc.CreateAccount(context.Background(), "Alice", "123")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	svc := NewAccountService(newMockAccounts(), db.NewMemoryHistories(), nil, nil)

	res, err := svc.GetByID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Message != models.MsgAccountNotFound || res.Data != nil {
		t.Errorf("expected not found, got %+v", res)
	}
}

func TestGetByFilter(t *testing.T) {
	svc := NewAccountService(newMockAccounts(), db.NewMemoryHistories(), nil, nil)

	res, err := svc.GetByFilter(context.Background(), "", "")
	if err != nil || !res.Success {
		t.Fatalf("unexpected result %+v, %v", res.Result, err)
	}
	if res.Data == nil || len(res.Data) != 0 {
		t.Errorf("expected empty non-nil list, got %v", res.Data)
	}

	mustCreate(t, svc, "Alice", "1")
	mustCreate(t, svc, "Bob", "2")

	tests := []struct {
		name, document string
		want           int
	}{
		{"", "", 2},
		{"ALICE", "", 1},
		{"  bo ", "", 1},
		{"", "2", 1},
		{"alice", "2", 0},
	}
	for _, tt := range tests {
		res, err := svc.GetByFilter(context.Background(), tt.name, tt.document)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Data) != tt.want {
			t.Errorf("filter(%q, %q): expected %d, got %d", tt.name, tt.document, tt.want, len(res.Data))
		}
	}
}

func TestTransfer(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewAccountService(newMockAccounts(), db.NewMemoryHistories(), pub, nil)
	alice := mustCreate(t, svc, "Alice", "1")
	bob := mustCreate(t, svc, "Bob", "2")

	res, err := svc.Transfer(context.Background(), alice.ID(), bob.ID(), dec("500"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.Message != models.MsgTransferCompleted {
		t.Fatalf("expected success, got %+v", res)
	}

	if got := balanceOf(t, svc, alice.ID()); !got.Equal(dec("500")) {
		t.Errorf("expected source 500, got %s", got)
	}
	if got := balanceOf(t, svc, bob.ID()); !got.Equal(dec("1500")) {
		t.Errorf("expected destination 1500, got %s", got)
	}

	types := pub.types()
	if types[len(types)-1] != models.TransferCompleted {
		t.Errorf("expected transfer.completed last, got %v", types)
	}
}

func TestTransferRejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(t *testing.T, svc *AccountService) (uuid.UUID, uuid.UUID)
		amount  string
		wantMsg string
		wantKey string
	}{
		{
			name: "insufficient balance",
			setup: func(t *testing.T, svc *AccountService) (uuid.UUID, uuid.UUID) {
				return mustCreate(t, svc, "A", "1").ID(), mustCreate(t, svc, "B", "2").ID()
			},
			amount:  "1000.01",
			wantMsg: models.MsgTransferFailed,
			wantKey: "source.balance",
		},
		{
			name: "inactive destination",
			setup: func(t *testing.T, svc *AccountService) (uuid.UUID, uuid.UUID) {
				a, b := mustCreate(t, svc, "A", "1"), mustCreate(t, svc, "B", "2")
				if _, err := svc.DeactivateByDocument(ctx, "2", "admin"); err != nil {
					t.Fatal(err)
				}
				return a.ID(), b.ID()
			},
			amount:  "10",
			wantMsg: models.MsgTransferFailed,
			wantKey: "destination.is_active",
		},
		{
			name: "inactive source",
			setup: func(t *testing.T, svc *AccountService) (uuid.UUID, uuid.UUID) {
				a, b := mustCreate(t, svc, "A", "1"), mustCreate(t, svc, "B", "2")
				if _, err := svc.DeactivateByDocument(ctx, "1", "admin"); err != nil {
					t.Fatal(err)
				}
				return a.ID(), b.ID()
			},
			amount:  "10",
			wantMsg: models.MsgTransferFailed,
			wantKey: "source.is_active",
		},
		{
			name: "negative amount",
			setup: func(t *testing.T, svc *AccountService) (uuid.UUID, uuid.UUID) {
				return mustCreate(t, svc, "A", "1").ID(), mustCreate(t, svc, "B", "2").ID()
			},
			amount:  "-5",
			wantMsg: models.MsgTransferFailed,
			wantKey: "amount",
		},
		{
			name: "same account",
			setup: func(t *testing.T, svc *AccountService) (uuid.UUID, uuid.UUID) {
				a := mustCreate(t, svc, "A", "1")
				return a.ID(), a.ID()
			},
			amount:  "10",
			wantMsg: models.MsgTransferFailed,
			wantKey: "destination_account_id",
		},
		{
			name: "missing source",
			setup: func(t *testing.T, svc *AccountService) (uuid.UUID, uuid.UUID) {
				return uuid.New(), mustCreate(t, svc, "B", "2").ID()
			},
			amount:  "10",
			wantMsg: MsgSourceNotFound,
		},
		{
			name: "missing destination",
			setup: func(t *testing.T, svc *AccountService) (uuid.UUID, uuid.UUID) {
				return mustCreate(t, svc, "A", "1").ID(), uuid.New()
			},
			amount:  "10",
			wantMsg: MsgDestinationNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			svc := NewAccountService(newMockAccounts(), db.NewMemoryHistories(), pub, nil)
			src, dst := tt.setup(t, svc)
			before := len(pub.types())

			res, err := svc.Transfer(ctx, src, dst, dec(tt.amount))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Success {
				t.Fatal("expected transfer to be rejected")
			}
			if res.Message != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, res.Message)
			}
			if tt.wantKey != "" {
				found := false
				for _, n := range res.Notifications {
					if n.Key == tt.wantKey {
						found = true
					}
				}
				if !found {
					t.Errorf("expected notification %q, got %+v", tt.wantKey, res.Notifications)
				}
			}
			if len(pub.types()) != before {
				t.Error("rejected transfer must not publish an event")
			}
		})
	}
}

func TestTransferRollsBackOnPersistenceError(t *testing.T) {
	accounts := newMockAccounts()
	svc := NewAccountService(accounts, db.NewMemoryHistories(), nil, nil)
	alice := mustCreate(t, svc, "Alice", "1")
	bob := mustCreate(t, svc, "Bob", "2")

	boom := errors.New("write failed")
	failing := &txFailingAccounts{MockAccounts: accounts, failOn: bob.ID(), err: boom}
	svc = NewAccountService(failing, db.NewMemoryHistories(), nil, nil)

	_, err := svc.Transfer(context.Background(), alice.ID(), bob.ID(), dec("100"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped write error, got %v", err)
	}

	if got := balanceOf(t, svc, alice.ID()); !got.Equal(dec("1000")) {
		t.Errorf("source balance changed to %s after failed transfer", got)
	}
	if got := balanceOf(t, svc, bob.ID()); !got.Equal(dec("1000")) {
		t.Errorf("destination balance changed to %s after failed transfer", got)
	}
}

// txFailingAccounts fails the transactional update of one account, or every
// transactional document lookup when lookupErr is set
type txFailingAccounts struct {
	*MockAccounts
	failOn    uuid.UUID
	err       error
	lookupErr error
}

func (f *txFailingAccounts) WithTransaction(ctx context.Context, fn func(repo models.AccountRepository) error) error {
	return f.MockAccounts.WithTransaction(ctx, func(repo models.AccountRepository) error {
		return fn(&failingTxRepo{AccountRepository: repo, failOn: f.failOn, err: f.err, lookupErr: f.lookupErr})
	})
}

type failingTxRepo struct {
	models.AccountRepository
	failOn    uuid.UUID
	err       error
	lookupErr error
}

func (r *failingTxRepo) GetByDocument(ctx context.Context, document string) (*models.Account, error) {
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	return r.AccountRepository.GetByDocument(ctx, document)
}

func (r *failingTxRepo) Update(ctx context.Context, account *models.Account) error {
	if account.ID() == r.failOn {
		return r.err
	}
	return r.AccountRepository.Update(ctx, account)
}

func TestConcurrentTransfersConserveMoney(t *testing.T) {
	svc := NewAccountService(newMockAccounts(), db.NewMemoryHistories(), nil, nil)
	alice := mustCreate(t, svc, "Alice", "1")
	bob := mustCreate(t, svc, "Bob", "2")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			svc.Transfer(context.Background(), alice.ID(), bob.ID(), dec("7.25"))
		}()
		go func() {
			defer wg.Done()
			svc.Transfer(context.Background(), bob.ID(), alice.ID(), dec("3.10"))
		}()
	}
	wg.Wait()

	total := balanceOf(t, svc, alice.ID()).Add(balanceOf(t, svc, bob.ID()))
	if !total.Equal(dec("2000")) {
		t.Errorf("expected total 2000, got %s", total)
	}
}

func TestDeactivateByDocument(t *testing.T) {
	histories := db.NewMemoryHistories()
	pub := &recordingPublisher{}
	svc := NewAccountService(newMockAccounts(), histories, pub, nil)
	acc := mustCreate(t, svc, "Alice", "123")

	res, err := svc.DeactivateByDocument(context.Background(), "123", "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.Message != models.MsgAccountDeactivated {
		t.Fatalf("expected success, got %+v", res)
	}

	got, _ := svc.GetByID(context.Background(), acc.ID())
	if got.Data.IsActive() {
		t.Error("expected account to be inactive")
	}

	trail, err := histories.GetByAccountID(context.Background(), acc.ID(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 1 {
		t.Fatalf("expected exactly one history record, got %d", len(trail))
	}
	if trail[0].Action() != models.ActionDeactivation || trail[0].ResponsibleUser() != "admin" || trail[0].Document() != "123" {
		t.Errorf("unexpected history record %+v", trail[0])
	}

	types := pub.types()
	if types[len(types)-1] != models.AccountDeactivated {
		t.Errorf("expected account.deactivated last, got %v", types)
	}
}

func TestDeactivateByDocumentRejections(t *testing.T) {
	tests := []struct {
		name, document, user string
		wantMsg              string
	}{
		{"blank document", " ", "admin", models.MsgAccountDeactivationFailed},
		{"blank user", "123", "", models.MsgAccountDeactivationFailed},
		{"unknown document", "999", "admin", models.MsgAccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := newMockAccounts()
			histories := db.NewMemoryHistories()
			svc := NewAccountService(accounts, histories, nil, nil)
			acc := mustCreate(t, svc, "Alice", "123")

			res, err := svc.DeactivateByDocument(context.Background(), tt.document, tt.user)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Success || res.Message != tt.wantMsg {
				t.Errorf("expected %q, got %+v", tt.wantMsg, res)
			}
			got, _ := svc.GetByID(context.Background(), acc.ID())
			if !got.Data.IsActive() {
				t.Error("rejected deactivation must not write the account")
			}
			trail, _ := histories.GetByAccountID(context.Background(), acc.ID(), 0, 0)
			if len(trail) != 0 {
				t.Errorf("expected no history, got %d records", len(trail))
			}
		})
	}
}

func TestDeactivateByDocumentPersistenceError(t *testing.T) {
	boom := errors.New("timeout")
	accounts := newMockAccounts()
	mustCreate(t, NewAccountService(accounts, db.NewMemoryHistories(), nil, nil), "Alice", "123")

	svc := NewAccountService(&txFailingAccounts{MockAccounts: accounts, lookupErr: boom}, db.NewMemoryHistories(), nil, nil)
	if _, err := svc.DeactivateByDocument(context.Background(), "123", "admin"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped lookup error, got %v", err)
	}
}

// failingHistories refuses every audit record
type failingHistories struct {
	*db.MemoryHistories
	err error
}

func (f failingHistories) Create(ctx context.Context, history *models.AccountHistory) error {
	return f.err
}

func TestDeactivateByDocumentRollsBackWithoutHistory(t *testing.T) {
	boom := errors.New("audit store down")
	accounts := newMockAccounts()
	acc := mustCreate(t, NewAccountService(accounts, db.NewMemoryHistories(), nil, nil), "Alice", "123")

	pub := &recordingPublisher{}
	svc := NewAccountService(accounts, failingHistories{db.NewMemoryHistories(), boom}, pub, nil)
	if _, err := svc.DeactivateByDocument(context.Background(), "123", "admin"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped history error, got %v", err)
	}

	got, _ := svc.GetByID(context.Background(), acc.ID())
	if !got.Data.IsActive() {
		t.Error("account was deactivated without its audit record")
	}
	if len(pub.types()) != 0 {
		t.Errorf("expected no events, got %v", pub.types())
	}
}

func TestDeactivateDoesNotOverwriteTransfer(t *testing.T) {
	ctx := context.Background()
	accounts := newMockAccounts()
	svc := NewAccountService(accounts, db.NewMemoryHistories(), nil, nil)
	alice := mustCreate(t, svc, "Alice", "1")
	bob := mustCreate(t, svc, "Bob", "2")

	// a transfer lands right after any untransacted read of Alice's account
	fired := false
	accounts.GetByDocumentFunc = func(ctx context.Context, document string) (*models.Account, error) {
		acc, err := accounts.MemoryAccounts.GetByDocument(ctx, document)
		if !fired && document == "1" {
			fired = true
			if res, err := svc.Transfer(ctx, alice.ID(), bob.ID(), dec("500")); err != nil || !res.Success {
				t.Fatalf("interleaved transfer: %+v, %v", res, err)
			}
		}
		return acc, err
	}

	res, err := svc.DeactivateByDocument(ctx, "1", "admin")
	if err != nil || !res.Success {
		t.Fatalf("deactivate: %+v, %v", res, err)
	}

	accounts.GetByDocumentFunc = nil
	if fired {
		if got := balanceOf(t, svc, alice.ID()); !got.Equal(dec("500")) {
			t.Errorf("deactivation overwrote the transfer: alice=%s", got)
		}
	}
	total := balanceOf(t, svc, alice.ID()).Add(balanceOf(t, svc, bob.ID()))
	if !total.Equal(dec("2000")) {
		t.Errorf("money not conserved: total %s", total)
	}
}

func TestConcurrentDeactivationConservesMoney(t *testing.T) {
	ctx := context.Background()
	svc := NewAccountService(newMockAccounts(), db.NewMemoryHistories(), nil, nil)
	alice := mustCreate(t, svc, "Alice", "1")
	bob := mustCreate(t, svc, "Bob", "2")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Transfer(ctx, alice.ID(), bob.ID(), dec("5"))
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.DeactivateByDocument(ctx, "1", "admin")
	}()
	wg.Wait()

	total := balanceOf(t, svc, alice.ID()).Add(balanceOf(t, svc, bob.ID()))
	if !total.Equal(dec("2000")) {
		t.Errorf("expected total 2000, got %s", total)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewAccountService(newMockAccounts(), db.NewMemoryHistories(), pub, nil)

	res, err := svc.CreateAccount(context.Background(), "Alice", "123")
	if err != nil || !res.Success {
		t.Fatalf("expected success despite broker failure, got %+v, %v", res.Result, err)
	}
}

func TestGetHistoryPaging(t *testing.T) {
	histories := db.NewMemoryHistories()
	svc := NewAccountService(newMockAccounts(), histories, nil, nil)
	acc := mustCreate(t, svc, "Alice", "123")

	for _, user := range []string{"first", "second", "third"} {
		h := models.NewAccountHistory(acc.ID(), acc.Document(), models.ActionDeactivation, user)
		if err := histories.Create(context.Background(), h); err != nil {
			t.Fatal(err)
		}
	}

	res, err := svc.GetHistory(context.Background(), acc.ID(), 2, 0)
	if err != nil || !res.Success {
		t.Fatalf("unexpected result %+v, %v", res.Result, err)
	}
	if len(res.Data) != 2 || res.Data[0].ResponsibleUser() != "third" {
		t.Errorf("expected newest two records, got %d", len(res.Data))
	}

	res, _ = svc.GetHistory(context.Background(), acc.ID(), 2, 2)
	if len(res.Data) != 1 || res.Data[0].ResponsibleUser() != "first" {
		t.Errorf("expected the oldest record on page two, got %d", len(res.Data))
	}

	res, _ = svc.GetHistory(context.Background(), uuid.New(), 10, 0)
	if res.Success || res.Message != models.MsgAccountNotFound {
		t.Errorf("expected not found, got %+v", res.Result)
	}
}
