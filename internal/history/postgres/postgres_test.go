package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/ocsup/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	sink, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	code := 1
	events := []history.Event{
		{Type: history.EventStart, OccurredAt: time.Now().UTC(), Project: "/vault", PID: 12345, State: "starting", Command: "opencode serve"},
		{Type: history.EventCrash, OccurredAt: time.Now().UTC(), Project: "/vault", PID: 12345, State: "stopped", ExitCode: &code},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send %s event: %v", e.Type, err)
		}
	}

	var count int
	if err := sink.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+history.Table+" WHERE project = $1", "/vault").Scan(&count); err != nil {
		t.Fatalf("Failed to query %s: %v", history.Table, err)
	}
	if count != 2 {
		t.Errorf("Expected 2 events in history, got %d", count)
	}

	var exit *int32
	if err := sink.db.QueryRowContext(ctx, "SELECT exit_code FROM "+history.Table+" WHERE event = 'start'").Scan(&exit); err != nil {
		t.Fatalf("scan exit_code: %v", err)
	}
	if exit != nil {
		t.Errorf("start event should have NULL exit_code, got %d", *exit)
	}
}

func TestPostgresSink_EmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
