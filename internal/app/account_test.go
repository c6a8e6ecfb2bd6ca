package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/facepay-service/internal/domain"
	"github.com/transfa/facepay-service/internal/store"
	"golang.org/x/crypto/bcrypt"
)

func TestRegisterAccountCreatesCustomerAndLogsIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.RegisterAccount(ctx, RegisterAccountRequest{
		Name: " Grace ", Mobile: " +15550002222 ", Email: "grace@example.com", PIN: "2468",
	})
	if err != nil {
		t.Fatalf("RegisterAccount returned error: %v", err)
	}

	stored, ok := f.repo.accounts[res.Account.ID]
	if !ok {
		t.Fatal("expected the account to be stored")
	}
	if stored.AccountType != domain.AccountTypeCustomer || stored.Name != "Grace" || stored.Mobile != "+15550002222" {
		t.Fatalf("unexpected stored account %+v", stored)
	}
	if len(stored.AccountNumber) != accountNumberDigits || stored.Balance != 0 {
		t.Fatalf("expected a generated account number and zero balance, got %q balance=%d", stored.AccountNumber, stored.Balance)
	}
	if stored.LoginPINHash == "2468" || bcrypt.CompareHashAndPassword([]byte(stored.LoginPINHash), []byte("2468")) != nil {
		t.Fatal("expected a bcrypt hash of the login pin")
	}

	claims, err := f.svc.tokens.Parse(res.Token)
	if err != nil || claims.Subject != stored.ID.String() || claims.Role != domain.AccountTypeCustomer {
		t.Fatalf("unexpected token claims %+v err=%v", claims, err)
	}
	if _, err := f.svc.Login(ctx, "+15550002222", "2468"); err != nil {
		t.Fatalf("expected the new account to log in, got %v", err)
	}
}

func TestRegisterAccountRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterAccount(ctx, RegisterAccountRequest{Name: "Ada Again", Mobile: fixtureCustomerTel, PIN: "1234"})
	if !errors.Is(err, store.ErrDuplicateMobile) {
		t.Fatalf("expected ErrDuplicateMobile, got %v", err)
	}

	_, err = f.svc.RegisterAccount(ctx, RegisterAccountRequest{Name: "Bob", Mobile: "+15550003333", AccountNumber: f.customer.AccountNumber, PIN: "1234"})
	if !errors.Is(err, store.ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
	if len(f.repo.accounts) != 2 {
		t.Fatalf("expected no new accounts, got %d", len(f.repo.accounts))
	}
}

func TestRegisterAccountValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  RegisterAccountRequest
		want error
	}{
		{name: "missing name", req: RegisterAccountRequest{Mobile: "+1555", PIN: "1234"}, want: ErrInvalidAccount},
		{name: "missing mobile", req: RegisterAccountRequest{Name: "Bob", PIN: "1234"}, want: ErrInvalidAccount},
		{name: "short pin", req: RegisterAccountRequest{Name: "Bob", Mobile: "+1555", PIN: "123"}, want: ErrInvalidLoginPIN},
		{name: "letters in pin", req: RegisterAccountRequest{Name: "Bob", Mobile: "+1555", PIN: "12a4"}, want: ErrInvalidLoginPIN},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.RegisterAccount(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDepositCreditsAndAppendsBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	receipt, err := f.svc.Deposit(ctx, DepositRequest{AccountID: f.vendor.ID, Amount: 12550})
	if err != nil {
		t.Fatalf("Deposit returned error: %v", err)
	}
	if receipt.Balance != 12550 || f.balance(f.vendor.ID) != 12550 {
		t.Fatalf("expected balance 12550, got receipt=%d stored=%d", receipt.Balance, f.balance(f.vendor.ID))
	}

	txn := receipt.Transaction
	if txn.PaymentMethod != domain.PaymentMethodDeposit || txn.SenderAccountNumber != domain.CashAccountNumber || txn.Remarks != "Cash deposit" {
		t.Fatalf("unexpected deposit transaction %+v", txn)
	}
	if len(f.repo.txns) != 1 || len(f.repo.blocks) != 1 || f.repo.ledgerLocks != 1 {
		t.Fatalf("expected one transaction, one block and one ledger lock, got %d/%d/%d", len(f.repo.txns), len(f.repo.blocks), f.repo.ledgerLocks)
	}
	if receipt.BlockIndex != 0 || receipt.BlockHash != f.repo.blocks[0].Hash {
		t.Fatalf("receipt does not match the appended block")
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].msg.Template != TemplateDepositCredit {
		t.Fatalf("expected one deposit notification, got %+v", f.notifier.sent)
	}

	report, err := f.svc.ValidateLedger(ctx)
	if err != nil || !report.Valid {
		t.Fatalf("expected a valid chain after deposit, got %+v err=%v", report, err)
	}
}

func TestDepositRollsBackWhenLedgerFails(t *testing.T) {
	f := newFixture(t)
	f.repo.insertBlockErr = store.ErrDuplicateBlockIndex

	_, err := f.svc.Deposit(context.Background(), DepositRequest{AccountID: f.customer.ID, Amount: 500})
	if !errors.Is(err, store.ErrDuplicateBlockIndex) {
		t.Fatalf("expected ErrDuplicateBlockIndex, got %v", err)
	}
	if f.balance(f.customer.ID) != 100000 || len(f.repo.txns) != 0 {
		t.Fatalf("failed deposit must not change balances or transactions")
	}
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Deposit(ctx, DepositRequest{AccountID: f.customer.ID, Amount: 0}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := f.svc.Deposit(ctx, DepositRequest{AccountID: uuid.New(), Amount: 100}); !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if len(f.repo.blocks) != 0 {
		t.Fatal("rejected deposits must not append blocks")
	}
}

func TestGetBalanceAndDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		session := f.advanceTo(t, 100, domain.SessionFaceVerified)
		if _, err := f.svc.VerifyPIN(ctx, f.vendor.ID, session.ID, fixturePIN); err != nil {
			t.Fatalf("VerifyPIN returned error: %v", err)
		}
		f.clock.Advance(time.Second)
	}

	bal, err := f.svc.GetBalance(ctx, f.customer.ID)
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	if bal.Balance != 99400 || bal.Display != "994.00" || bal.AccountNumber != f.customer.AccountNumber {
		t.Fatalf("unexpected balance %+v", bal)
	}

	dash, err := f.svc.Dashboard(ctx, f.customer.ID)
	if err != nil {
		t.Fatalf("Dashboard returned error: %v", err)
	}
	if len(dash.RecentTransactions) != dashboardRecentLimit {
		t.Fatalf("expected %d recent transactions, got %d", dashboardRecentLimit, len(dash.RecentTransactions))
	}
	if !dash.RecentTransactions[0].CreatedAt.After(dash.RecentTransactions[4].CreatedAt) {
		t.Fatal("expected newest transactions first")
	}
	if dash.FacePay == nil || !dash.FacePay.Active {
		t.Fatalf("expected facepay status on a customer dashboard, got %+v", dash.FacePay)
	}

	vendorDash, err := f.svc.Dashboard(ctx, f.vendor.ID)
	if err != nil || vendorDash.FacePay != nil {
		t.Fatalf("expected no facepay status for a vendor, got %+v err=%v", vendorDash, err)
	}

	if _, err := f.svc.GetBalance(ctx, uuid.New()); !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
