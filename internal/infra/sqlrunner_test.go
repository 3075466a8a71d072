package infra

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

func TestExtractMarker(t *testing.T) {
	query := "\n--sql 0b5e3c1d-52a4-4c55-9a0e-0f4a1c2d3e4f\nSELECT 1;\n"

	marker, body, err := extractMarker(query)
	if err != nil {
		t.Fatalf("extractMarker returned error: %v", err)
	}
	if marker != "0b5e3c1d-52a4-4c55-9a0e-0f4a1c2d3e4f" {
		t.Fatalf("marker mismatch: %q", marker)
	}
	if body != "SELECT 1;" {
		t.Fatalf("body mismatch: %q", body)
	}
}

func TestExtractMarkerRejectsUnmarkedSQL(t *testing.T) {
	for _, query := range []string{
		"SELECT 1;",
		"--sql not-a-uuid\nSELECT 1;",
		"-- sql 0b5e3c1d-52a4-4c55-9a0e-0f4a1c2d3e4f\nSELECT 1;",
	} {
		if _, _, err := extractMarker(query); err == nil {
			t.Fatalf("expected error for %q", query)
		}
	}
}

func TestRunnerRejectsUnmarkedQueries(t *testing.T) {
	r := &SQLRunner{Logger: zerolog.Nop(), db: unreachableExecutor{t: t}}

	if _, err := r.Exec(context.Background(), "DELETE FROM donations"); err == nil {
		t.Fatal("expected exec error")
	}
	if _, err := r.Query(context.Background(), "SELECT 1"); err == nil {
		t.Fatal("expected query error")
	}
	var n int
	if err := r.QueryRow(context.Background(), "SELECT 1").Scan(&n); err == nil {
		t.Fatal("expected scan error")
	}
}

func TestInTxRequiresPool(t *testing.T) {
	r := &SQLRunner{Logger: zerolog.Nop()}
	err := r.InTx(context.Background(), pgx.TxOptions{}, func(SQLExecutor) error { return nil })
	if err == nil {
		t.Fatal("expected error without pool")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "wrapped", err: fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("load counters: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to match")
	}
	if IsNoRows(errors.New("no rows")) {
		t.Fatal("unexpected match for unrelated error")
	}
}

type unreachableExecutor struct {
	t *testing.T
}

func (u unreachableExecutor) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	u.t.Fatal("exec reached the database")
	return pgconn.CommandTag{}, nil
}

func (u unreachableExecutor) QueryRow(context.Context, string, ...any) pgx.Row {
	u.t.Fatal("query_row reached the database")
	return nil
}

func (u unreachableExecutor) Query(context.Context, string, ...any) (pgx.Rows, error) {
	u.t.Fatal("query reached the database")
	return nil, nil
}
