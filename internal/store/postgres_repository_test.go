package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/transfa/facepay-service/internal/domain"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "wrapped unique violation", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), want: true},
		{name: "check violation", err: &pgconn.PgError{Code: "23514"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPgTxSatisfiesTx(t *testing.T) {
	var _ Tx = (*pgTx)(nil)
	var _ Repository = (*PostgresRepository)(nil)
}

func TestTransitionDeadline(t *testing.T) {
	if transitionDeadline(time.Time{}) != nil {
		t.Fatal("expected a zero instant to skip the expiry predicate")
	}
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := transitionDeadline(at); got == nil || !got.Equal(at) {
		t.Fatalf("expected %v, got %v", at, got)
	}
}

func TestTransitionFailure(t *testing.T) {
	expiresAt := time.Date(2024, 6, 1, 12, 15, 0, 0, time.UTC)
	current := &domain.PaymentSession{Status: domain.SessionFaceVerified, ExpiresAt: expiresAt}

	tests := []struct {
		name string
		from domain.SessionStatus
		at   time.Time
		want error
	}{
		{name: "expired in expected state", from: domain.SessionFaceVerified, at: expiresAt, want: ErrSessionExpired},
		{name: "status moved on", from: domain.SessionPhoneVerified, at: expiresAt.Add(-time.Minute), want: ErrSessionStateConflict},
		{name: "moved on and expired", from: domain.SessionPhoneVerified, at: expiresAt.Add(time.Minute), want: ErrSessionStateConflict},
		{name: "no instant given", from: domain.SessionFaceVerified, at: time.Time{}, want: ErrSessionStateConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transitionFailure(current, tt.from, tt.at); !errors.Is(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAccountConflict(t *testing.T) {
	plain := errors.New("connection reset")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "mobile", err: &pgconn.PgError{Code: "23505", ConstraintName: "accounts_mobile_key"}, want: ErrDuplicateMobile},
		{name: "account number", err: &pgconn.PgError{Code: "23505", ConstraintName: "accounts_account_number_key"}, want: ErrDuplicateAccount},
		{name: "other violation", err: &pgconn.PgError{Code: "23514", ConstraintName: "accounts_balance_check"}, want: nil},
		{name: "plain error", err: plain, want: plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := accountConflict(tt.err)
			if tt.want == nil {
				if got != tt.err {
					t.Fatalf("expected the original error, got %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
