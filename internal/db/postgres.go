package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abkawan/banking-accounts/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	uniqueViolation    = "23505"
	documentConstraint = "accounts_document_key"
)

// Postgres.go handles PostgreSQL account storage
type Postgres struct {
	db *sql.DB
	accountQueries
}

// creates a new Postgres instance
func NewPostgres(connStr string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &Postgres{db: db, accountQueries: accountQueries{q: db}}, nil
}

// closes the database connection
func (p *Postgres) Close() error {
	return p.db.Close()
}

// initialize the database schema
func (p *Postgres) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		document VARCHAR(20) NOT NULL,
		balance NUMERIC(18, 2) NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS accounts_document_key ON accounts (document);
	CREATE INDEX IF NOT EXISTS accounts_name_document_idx ON accounts (name, document);`

	_, err := p.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create accounts table: %w", err)
	}
	return nil
}

// runs fn inside a database transaction; account reads inside fn take row locks
func (p *Postgres) WithTransaction(ctx context.Context, fn func(repo models.AccountRepository) error) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&postgresTx{accountQueries{q: tx, forUpdate: true}}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type postgresTx struct {
	accountQueries
}

func (t *postgresTx) WithTransaction(ctx context.Context, fn func(repo models.AccountRepository) error) error {
	return fn(t)
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type accountQueries struct {
	q         querier
	forUpdate bool
}

const selectAccount = `
	SELECT id, name, document, balance, created_at, is_active
	FROM accounts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		id        uuid.UUID
		name      string
		document  string
		balance   decimal.Decimal
		createdAt time.Time
		isActive  bool
	)
	if err := row.Scan(&id, &name, &document, &balance, &createdAt, &isActive); err != nil {
		return nil, err
	}
	return models.RestoreAccount(id, name, document, balance, createdAt, isActive), nil
}

// single-row lookups lock the row when running inside a transaction
func (a accountQueries) selectOneBy(column string) string {
	query := selectAccount + ` WHERE ` + column + ` = $1`
	if a.forUpdate {
		query += ` FOR UPDATE`
	}
	return query
}

// retrieves an account by ID
func (a accountQueries) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account, err := scanAccount(a.q.QueryRowContext(ctx, a.selectOneBy("id"), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// retrieves an account by document
func (a accountQueries) GetByDocument(ctx context.Context, document string) (*models.Account, error) {
	account, err := scanAccount(a.q.QueryRowContext(ctx, a.selectOneBy("document"), document))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account by document: %w", err)
	}
	return account, nil
}

// lists accounts by name substring (case-insensitive) and exact document
func (a accountQueries) GetAllByFilter(ctx context.Context, name, document string) ([]*models.Account, error) {
	query, args := buildFilterQuery(name, document)

	rows, err := a.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to filter accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*models.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}
	return accounts, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func buildFilterQuery(name, document string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if n := strings.TrimSpace(name); n != "" {
		args = append(args, "%"+likeEscaper.Replace(n)+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if d := strings.TrimSpace(document); d != "" {
		args = append(args, d)
		conds = append(conds, fmt.Sprintf("document = $%d", len(args)))
	}

	query := selectAccount
	if len(conds) > 0 {
		query += "\n\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\tORDER BY created_at, id"
	return query, args
}

// creates a new account
func (a accountQueries) Create(ctx context.Context, account *models.Account) error {
	query := `
	INSERT INTO accounts (id, name, document, balance, is_active, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $6)`

	_, err := a.q.ExecContext(ctx, query,
		account.ID(), account.Name(), account.Document(), account.Balance(), account.IsActive(), account.CreatedAt(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == documentConstraint {
			return models.ErrDuplicateDocument
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// persists the mutable state of an account: balance and activation
func (a accountQueries) Update(ctx context.Context, account *models.Account) error {
	res, err := a.q.ExecContext(ctx,
		"UPDATE accounts SET balance = $1, is_active = $2, updated_at = $3 WHERE id = $4",
		account.Balance(), account.IsActive(), time.Now().UTC(), account.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if n == 0 {
		return errAccountMissing(account.ID())
	}
	return nil
}

func errAccountMissing(id uuid.UUID) error {
	return fmt.Errorf("account %s does not exist", id)
}
