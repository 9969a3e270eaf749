package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := OpenInMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestWithRetry(t *testing.T) {
	tests := []struct {
		name         string
		maxAttempts  int
		failures     int
		err          error
		wantAttempts int
		wantErr      bool
	}{
		{name: "retries on busy", maxAttempts: 3, failures: 2, err: errors.New("database is locked"), wantAttempts: 3},
		{name: "stops on other errors", maxAttempts: 3, failures: 5, err: errors.New("boom"), wantAttempts: 1, wantErr: true},
		{name: "stops after max attempts", maxAttempts: 2, failures: 5, err: errors.New("database is busy"), wantAttempts: 2, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := withRetry(context.Background(), tt.maxAttempts, time.Millisecond, func(int) error {
				attempts++
				if attempts <= tt.failures {
					return tt.err
				}
				return nil
			})
			assert.Equal(t, tt.wantAttempts, attempts)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithRetryCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := withRetry(ctx, 3, time.Millisecond, func(int) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestIsBusyError(t *testing.T) {
	assert.False(t, isBusyError(nil))
	assert.False(t, isBusyError(context.Canceled))
	assert.True(t, isBusyError(errors.New("SQLITE_BUSY: try again")))
	assert.False(t, isBusyError(errors.New("no such table")))
}

func TestTransactionWithRetry(t *testing.T) {
	database := setupTestDB(t)

	attempts := 0
	err := database.TransactionWithRetry(context.Background(), 3, time.Millisecond, func(tx *sql.Tx) error {
		attempts++
		if attempts < 2 {
			return errors.New("database is locked")
		}
		_, err := tx.Exec(`INSERT INTO events (id, timestamp, type) VALUES ('e1', '2024-01-01T00:00:00Z', 'archive.saved')`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	var n int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestTransactionRollsBack(t *testing.T) {
	database := setupTestDB(t)

	err := database.Transaction(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO events (id, timestamp, type) VALUES ('e1', '2024-01-01T00:00:00Z', 'archive.saved')`); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	var n int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n))
	assert.Zero(t, n)
}

func TestOpenCreatesFile(t *testing.T) {
	path := t.TempDir() + "/state/heap.db"
	database, err := Open(context.Background(), Config{Path: path, BusyTimeout: time.Second})
	require.NoError(t, err)
	defer database.Close()
	assert.FileExists(t, path)
	assert.Equal(t, path, database.Path())

	_, err = Open(context.Background(), Config{})
	assert.Error(t, err)
}
