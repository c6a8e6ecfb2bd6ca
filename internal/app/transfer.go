package app

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/transfa/facepay-service/internal/domain"
	"github.com/transfa/facepay-service/internal/store"
)

// TransferRequest moves funds from the caller's account to another account number.
type TransferRequest struct {
	SenderID              uuid.UUID
	ReceiverAccountNumber string
	Amount                int64
	Remarks               string
}

// TransferReceipt is returned after a committed transfer.
type TransferReceipt struct {
	Transaction *domain.Transaction `json:"transaction"`
	BlockIndex  int64               `json:"block_index"`
	BlockHash   string              `json:"block_hash"`
}

// Transfer settles an account-to-account transfer and records it on the ledger.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	txnID := uuid.New()
	var result *settlement
	err := s.repo.WithinTransaction(ctx, func(tx store.Tx) error {
		sender, err := tx.FindAccountByID(ctx, req.SenderID)
		if err != nil {
			return fmt.Errorf("find sender: %w", err)
		}
		receiver, err := tx.FindAccountByNumber(ctx, req.ReceiverAccountNumber)
		if err != nil {
			return fmt.Errorf("find receiver: %w", err)
		}
		if sender.ID == receiver.ID {
			return ErrSelfTransfer
		}
		result, err = s.moveFunds(ctx, tx, sender, receiver, req.Amount, req.Remarks, domain.PaymentMethodTransfer, nil, txnID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=transfer msg=\"transfer settled\" transaction_id=%s sender_id=%s amount=%d block_index=%d", txnID, req.SenderID, req.Amount, result.Block.Index)
	s.notifyTransfer(ctx, result)

	return &TransferReceipt{
		Transaction: result.Transaction,
		BlockIndex:  result.Block.Index,
		BlockHash:   result.Block.Hash,
	}, nil
}
