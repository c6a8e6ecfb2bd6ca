package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/transfa/facepay-service/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

func TestLoginIssuesTokenWithRole(t *testing.T) {
	f := newFixture(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("9876"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword returned error: %v", err)
	}
	vendor := f.repo.accounts[f.vendor.ID]
	vendor.LoginPINHash = string(hash)
	f.repo.accounts[f.vendor.ID] = vendor

	res, err := f.svc.Login(context.Background(), " "+f.vendor.Mobile+" ", "9876")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	claims, err := f.svc.tokens.Parse(res.Token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.Subject != f.vendor.ID.String() || claims.Role != domain.AccountTypeVendor {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.AccountNumber != f.vendor.AccountNumber {
		t.Fatalf("expected account number %s, got %s", f.vendor.AccountNumber, claims.AccountNumber)
	}

	if _, err := f.svc.Login(context.Background(), f.vendor.Mobile, "0000"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong pin, got %v", err)
	}
	if _, err := f.svc.Login(context.Background(), "+19999999999", "9876"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown mobile, got %v", err)
	}
	if _, err := f.svc.Login(context.Background(), f.customer.Mobile, "9876"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for account without a login pin, got %v", err)
	}
}

func TestTokenIssuerRejectsExpiredAndForeignTokens(t *testing.T) {
	issuer := NewTokenIssuer("secret-a", time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	account := &domain.Account{AccountType: domain.AccountTypeCustomer, AccountNumber: "C1"}
	token, expires, err := issuer.Issue(account)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if !expires.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected expiry %v", expires)
	}

	other := NewTokenIssuer("secret-b", time.Minute)
	other.now = issuer.now
	if _, err := other.Parse(token); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}

	now = now.Add(2 * time.Minute)
	if _, err := issuer.Parse(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}
