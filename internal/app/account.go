package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/facepay-service/internal/domain"
	"github.com/transfa/facepay-service/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const (
	loginPINLength       = 4
	accountNumberDigits  = 10
	accountNumberRetries = 3
	dashboardRecentLimit = 5
)

var accountNumberSpace = big.NewInt(10_000_000_000)

// RegisterAccountRequest opens a customer account. An empty AccountNumber is generated.
type RegisterAccountRequest struct {
	Name          string
	Mobile        string
	Email         string
	AccountNumber string
	PIN           string
}

// AccountBalance is the balance view of an account.
type AccountBalance struct {
	AccountNumber string `json:"account_number"`
	Balance       int64  `json:"balance"`
	Display       string `json:"balance_display"`
}

// Dashboard is the account holder's landing view.
type Dashboard struct {
	Account            *domain.Account       `json:"account"`
	RecentTransactions []domain.Transaction  `json:"recent_transactions"`
	FacePay            *domain.FacePayStatus `json:"facepay,omitempty"`
}

// DepositRequest credits cash to an account.
type DepositRequest struct {
	AccountID uuid.UUID
	Amount    int64
	Remarks   string
}

// DepositReceipt is returned after a committed deposit.
type DepositReceipt struct {
	Transaction *domain.Transaction `json:"transaction"`
	Balance     int64               `json:"balance"`
	BlockIndex  int64               `json:"block_index"`
	BlockHash   string              `json:"block_hash"`
}

// RegisterAccount creates a customer account with a bcrypt-hashed login PIN and logs it in.
func (s *Service) RegisterAccount(ctx context.Context, req RegisterAccountRequest) (*LoginResult, error) {
	name := strings.TrimSpace(req.Name)
	mobile := strings.TrimSpace(req.Mobile)
	if name == "" || mobile == "" {
		return nil, ErrInvalidAccount
	}
	if !isDigitPIN(req.PIN, loginPINLength) {
		return nil, ErrInvalidLoginPIN
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash login pin: %w", err)
	}

	account := &domain.Account{
		ID:           uuid.New(),
		AccountType:  domain.AccountTypeCustomer,
		Name:         name,
		Mobile:       mobile,
		Email:        strings.TrimSpace(req.Email),
		LoginPINHash: string(hash),
	}

	requested := strings.TrimSpace(req.AccountNumber)
	for attempt := 1; ; attempt++ {
		account.AccountNumber = requested
		if requested == "" {
			if account.AccountNumber, err = newAccountNumber(); err != nil {
				return nil, err
			}
		}
		err = s.repo.CreateAccount(ctx, account)
		if err == nil {
			break
		}
		// A generated number that collides is drawn again; a chosen one is reported.
		if !errors.Is(err, store.ErrDuplicateAccount) || requested != "" || attempt == accountNumberRetries {
			return nil, err
		}
	}
	log.Printf("level=info component=account msg=\"account registered\" account_id=%s account_number=%s", account.ID, account.AccountNumber)

	return s.issueLogin(account)
}

// GetBalance returns the account's current balance.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (*AccountBalance, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &AccountBalance{
		AccountNumber: account.AccountNumber,
		Balance:       account.Balance,
		Display:       FormatMinorUnits(account.Balance),
	}, nil
}

// Dashboard returns the account with its most recent transactions and, for customers,
// the FacePay enrollment state.
func (s *Service) Dashboard(ctx context.Context, accountID uuid.UUID) (*Dashboard, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	recent, err := s.repo.ListTransactionsByAccount(ctx, accountID, dashboardRecentLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent transactions: %w", err)
	}
	if recent == nil {
		recent = []domain.Transaction{}
	}

	dash := &Dashboard{Account: account, RecentTransactions: recent}
	if account.AccountType == domain.AccountTypeCustomer {
		if dash.FacePay, err = s.FacePayStatus(ctx, accountID); err != nil {
			return nil, err
		}
	}
	return dash, nil
}

// Deposit credits cash to the account and records it on the ledger in one unit of work.
func (s *Service) Deposit(ctx context.Context, req DepositRequest) (*DepositReceipt, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	remarks := strings.TrimSpace(req.Remarks)
	if remarks == "" {
		remarks = "Cash deposit"
	}

	var (
		account *domain.Account
		receipt *DepositReceipt
	)
	err := s.repo.WithinTransaction(ctx, func(tx store.Tx) error {
		var err error
		account, err = tx.FindAccountByID(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if err := tx.LockLedger(ctx); err != nil {
			return err
		}
		balance, err := tx.CreditAccount(ctx, account.ID, req.Amount)
		if err != nil {
			return fmt.Errorf("credit account: %w", err)
		}

		txn := &domain.Transaction{
			ID:                    uuid.New(),
			SenderID:              account.ID,
			ReceiverID:            account.ID,
			SenderAccountNumber:   domain.CashAccountNumber,
			ReceiverAccountNumber: account.AccountNumber,
			Amount:                req.Amount,
			Remarks:               remarks,
			PaymentMethod:         domain.PaymentMethodDeposit,
			Status:                domain.TransactionStatusCompleted,
			CreatedAt:             s.now().UTC().Truncate(time.Microsecond),
		}
		block, err := s.recordTransaction(ctx, tx, txn)
		if err != nil {
			return err
		}
		receipt = &DepositReceipt{Transaction: txn, Balance: balance, BlockIndex: block.Index, BlockHash: block.Hash}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=account msg=\"deposit settled\" transaction_id=%s account_id=%s amount=%d block_index=%d", receipt.Transaction.ID, account.ID, req.Amount, receipt.BlockIndex)
	s.notifyDeposit(ctx, account, receipt.Transaction, receipt.Balance)
	return receipt, nil
}

func (s *Service) issueLogin(account *domain.Account) (*LoginResult, error) {
	if s.tokens == nil {
		return nil, errors.New("token issuer is not configured")
	}
	token, expires, err := s.tokens.Issue(account)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expires, Account: account}, nil
}

func newAccountNumber() (string, error) {
	n, err := rand.Int(rand.Reader, accountNumberSpace)
	if err != nil {
		return "", fmt.Errorf("generate account number: %w", err)
	}
	return fmt.Sprintf("%0*d", accountNumberDigits, n), nil
}

func isDigitPIN(pin string, length int) bool {
	if len(pin) != length {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}
