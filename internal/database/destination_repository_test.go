package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/linkpipe/linkpipe/internal/database"
	"github.com/linkpipe/linkpipe/internal/domain"
)

func destinationColumns() []string {
	return []string{
		"id", "address", "name", "active", "daily_cap", "sent_today",
		"last_reset", "min_interval_seconds", "last_sent_at", "position",
		"created_at", "updated_at",
	}
}

func TestDestinationRepository_ListActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDestinationRepository(db)
	ctx := context.Background()

	now := time.Now()
	rows := sqlmock.NewRows(destinationColumns()).
		AddRow(uuid.New(), "dest-a@g.us", "Deals A", true, 50, 3, now, 30, nil, 0, now, now).
		AddRow(uuid.New(), "dest-b@g.us", "Deals B", true, 20, 0, now, 0, nil, 1, now, now)

	mock.ExpectQuery("SELECT (.+) FROM destinations").WillReturnRows(rows)

	dests, callErr := repo.ListActive(ctx)
	if callErr != nil {
		t.Fatalf("ListActive() error = %v", callErr)
	}
	if len(dests) != 2 {
		t.Fatalf("ListActive() returned %d destinations, want 2", len(dests))
	}
	if dests[0].Address != "dest-a@g.us" {
		t.Errorf("dests[0].Address = %q", dests[0].Address)
	}
	if dests[0].MinInterval != 30 {
		t.Errorf("dests[0].MinInterval = %d, want 30", dests[0].MinInterval)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestDestinationRepository_IncrementSent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDestinationRepository(db)
	ctx := context.Background()
	id := uuid.New()

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   error
	}{
		{
			name: "increments counter",
			setupMock: func() {
				mock.ExpectExec("UPDATE destinations").
					WithArgs(id).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "unknown destination returns ErrNotFound",
			setupMock: func() {
				mock.ExpectExec("UPDATE destinations").
					WithArgs(id).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			callErr := repo.IncrementSent(ctx, id)
			if !errors.Is(callErr, tc.wantErr) {
				t.Errorf("IncrementSent() error = %v, want %v", callErr, tc.wantErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestDestinationRepository_ResetCounterIfStale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDestinationRepository(db)
	ctx := context.Background()
	id := uuid.New()
	dayStart := time.Date(2026, 8, 31, 0, 0, 0, 0, time.Local)

	// Zero affected rows is the common case: the counter is fresh.
	mock.ExpectExec("UPDATE destinations").
		WithArgs(id, dayStart).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if callErr := repo.ResetCounterIfStale(ctx, id, dayStart); callErr != nil {
		t.Errorf("ResetCounterIfStale() error = %v", callErr)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestDestinationRepository_ResetAllDailyCounters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewDestinationRepository(db)
	ctx := context.Background()

	mock.ExpectExec("UPDATE destinations").
		WillReturnResult(sqlmock.NewResult(0, 4))

	reset, callErr := repo.ResetAllDailyCounters(ctx)
	if callErr != nil {
		t.Fatalf("ResetAllDailyCounters() error = %v", callErr)
	}
	if reset != 4 {
		t.Errorf("ResetAllDailyCounters() = %d, want 4", reset)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}
