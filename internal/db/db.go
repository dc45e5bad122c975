package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/xtrntr/marketplace/internal/auth"
	"github.com/xtrntr/marketplace/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// CreateUser inserts a new user with a freshly assigned account identifier
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (account, username, password_hash) VALUES ($1, $2, $3) RETURNING id, account, username, password_hash, created_at",
		uuid.NewString(), username, passwordHash).Scan(&user.ID, &user.Account, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, auth.ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, account, username, password_hash, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Account, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Append writes a committed marketplace event to the journal
func (db *DB) Append(ctx context.Context, ev models.Event) error {
	return insertEvent(ctx, db.Pool, ev)
}

func insertEvent(ctx context.Context, q querier, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = q.Exec(ctx,
		"INSERT INTO events (seq, kind, caller, payload, recorded_at) VALUES ($1, $2, $3, $4, $5)",
		int64(ev.Seq), string(ev.Kind), string(ev.Caller), string(payload), ev.At)
	if err != nil {
		return fmt.Errorf("failed to append event %d: %w", ev.Seq, err)
	}
	return nil
}

// Events retrieves the whole journal in sequence order
func (db *DB) Events(ctx context.Context) ([]models.Event, error) {
	rows, err := db.Pool.Query(ctx, "SELECT payload FROM events ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var ev models.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// Transfer records a payout to an external account. It satisfies the
// marketplace wallet contract: a nil error means the funds were sent.
func (db *DB) Transfer(ctx context.Context, to models.AccountID, amount uint64) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		return insertPayout(ctx, tx, to, amount)
	})
}

// Settle records a payout and the event that caused it in one transaction,
// so the journal never disagrees with the funds that left.
func (db *DB) Settle(ctx context.Context, ev models.Event, to models.AccountID, amount uint64) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		if err := insertPayout(ctx, tx, to, amount); err != nil {
			return err
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (db *DB) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertPayout(ctx context.Context, q querier, to models.AccountID, amount uint64) error {
	if amount == 0 || amount > math.MaxInt64 {
		return fmt.Errorf("payout amount %d out of range", amount)
	}

	var exists bool
	err := q.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE account = $1)", string(to)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check account existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("account %s not found", to)
	}

	_, err = q.Exec(ctx,
		"INSERT INTO payouts (reference, account, amount) VALUES ($1, $2, $3)",
		uuid.New(), string(to), int64(amount))
	if err != nil {
		return fmt.Errorf("failed to record payout: %w", err)
	}
	return nil
}

// Payouts retrieves the payouts made to an account, oldest first
func (db *DB) Payouts(ctx context.Context, account models.AccountID) ([]models.Payout, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT reference, account, amount, created_at FROM payouts WHERE account = $1 ORDER BY created_at ASC",
		string(account))
	if err != nil {
		return nil, fmt.Errorf("failed to get payouts: %w", err)
	}
	defer rows.Close()

	var payouts []models.Payout
	for rows.Next() {
		var (
			p         models.Payout
			reference uuid.UUID
			acct      string
			amount    int64
		)
		if err := rows.Scan(&reference, &acct, &amount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		p.Reference = reference.String()
		p.Account = models.AccountID(acct)
		p.Amount = uint64(amount)
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read payouts: %w", err)
	}
	return payouts, nil
}
