package db

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/marketplace/internal/auth"
	"github.com/xtrntr/marketplace/internal/models"
)

var testDB *DB

func TestMain(m *testing.M) {
	connString := os.Getenv("MARKETPLACE_TEST_DATABASE_URL")
	if connString == "" {
		fmt.Fprintln(os.Stderr, "MARKETPLACE_TEST_DATABASE_URL not set, skipping database tests")
		os.Exit(0)
	}

	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Apply migration if not already applied
	migration, err := os.ReadFile("../../migrations/001_init.sql")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to read migration: %v\n", err)
		os.Exit(1)
	}
	_, err = pool.Exec(context.Background(), string(migration))
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		fmt.Fprintf(os.Stderr, "Unable to apply migration: %v\n", err)
		os.Exit(1)
	}

	testDB = &DB{Pool: pool}
	os.Exit(m.Run())
}

func truncate(t *testing.T) {
	t.Helper()
	_, err := testDB.Pool.Exec(context.Background(), "TRUNCATE TABLE users, events, payouts RESTART IDENTITY")
	require.NoError(t, err)
}

func TestDB_CreateUser(t *testing.T) {
	truncate(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		username    string
		expectError bool
	}{
		{name: "Success", username: "alice"},
		{name: "SecondUser", username: "bob"},
		{name: "DuplicateUsername", username: "alice", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := testDB.CreateUser(ctx, tt.username, "hash")
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.username, user.Username)
			assert.NotEmpty(t, user.Account)

			got, err := testDB.GetUserByUsername(ctx, tt.username)
			require.NoError(t, err)
			assert.Equal(t, user.Account, got.Account)
		})
	}

	_, err := testDB.CreateUser(ctx, "alice", "hash")
	assert.ErrorIs(t, err, auth.ErrUsernameTaken)

	_, err = testDB.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDB_Journal(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []models.Event{
		{Seq: 1, Kind: models.EventSellerRegistered, Caller: "alice", At: at, Name: "Store A"},
		{Seq: 2, Kind: models.EventProductAdded, Caller: "alice", At: at, ProductID: 1, Price: 100, Stock: 5, Category: models.CategoryHome},
		{Seq: 3, Kind: models.EventOrderPlaced, Caller: "bob", At: at, ProductID: 1, OrderID: 1, Quantity: 2, Amount: 200},
	}
	for _, ev := range events {
		require.NoError(t, testDB.Append(ctx, ev))
	}

	err := testDB.Append(ctx, events[0])
	assert.Error(t, err, "sequence numbers are unique")

	got, err := testDB.Events(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(events))
	for i := range events {
		assert.Equal(t, events[i].Seq, got[i].Seq)
		assert.Equal(t, events[i].Kind, got[i].Kind)
		assert.Equal(t, events[i].Amount, got[i].Amount)
		assert.True(t, events[i].At.Equal(got[i].At))
	}
}

func TestDB_Transfer(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	user, err := testDB.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)

	tests := []struct {
		name        string
		account     models.AccountID
		amount      uint64
		expectError bool
	}{
		{name: "Success", account: user.Account, amount: 196},
		{name: "UnknownAccount", account: "ghost", amount: 10, expectError: true},
		{name: "ZeroAmount", account: user.Account, amount: 0, expectError: true},
		{name: "SecondPayout", account: user.Account, amount: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testDB.Transfer(ctx, tt.account, tt.amount)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	payouts, err := testDB.Payouts(ctx, user.Account)
	require.NoError(t, err)
	require.Len(t, payouts, 2)
	assert.Equal(t, uint64(196), payouts[0].Amount)
	assert.Equal(t, uint64(4), payouts[1].Amount)
	assert.NotEmpty(t, payouts[0].Reference)
}

func TestDB_Settle(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	user, err := testDB.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	at := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, testDB.Append(ctx, models.Event{Seq: 1, Kind: models.EventSellerRegistered, Caller: user.Account, At: at}))

	tests := []struct {
		name          string
		ev            models.Event
		account       models.AccountID
		expectError   bool
		expectEvents  int
		expectPayouts int
	}{
		{
			name:          "Success",
			ev:            models.Event{Seq: 2, Kind: models.EventSellerWithdrawal, Caller: user.Account, At: at, Amount: 98},
			account:       user.Account,
			expectEvents:  2,
			expectPayouts: 1,
		},
		{
			name:          "DuplicateSeqRollsBackPayout",
			ev:            models.Event{Seq: 2, Kind: models.EventSellerWithdrawal, Caller: user.Account, At: at, Amount: 98},
			account:       user.Account,
			expectError:   true,
			expectEvents:  2,
			expectPayouts: 1,
		},
		{
			name:          "UnknownAccountJournalsNothing",
			ev:            models.Event{Seq: 3, Kind: models.EventSellerWithdrawal, Caller: "ghost", At: at, Amount: 10},
			account:       "ghost",
			expectError:   true,
			expectEvents:  2,
			expectPayouts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testDB.Settle(ctx, tt.ev, tt.account, tt.ev.Amount)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			events, err := testDB.Events(ctx)
			require.NoError(t, err)
			assert.Len(t, events, tt.expectEvents)
			payouts, err := testDB.Payouts(ctx, user.Account)
			require.NoError(t, err)
			assert.Len(t, payouts, tt.expectPayouts)
		})
	}
}
