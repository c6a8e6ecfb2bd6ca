package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/facepay-service/internal/domain"
	"github.com/transfa/facepay-service/internal/store"
)

// PhoneVerification is returned once the customer behind a phone number is resolved.
type PhoneVerification struct {
	Session      *domain.PaymentSession `json:"session"`
	CustomerName string                 `json:"customer_name"`
}

// FaceVerification is returned after a successful face match.
type FaceVerification struct {
	Session *domain.PaymentSession `json:"session"`
	Score   float64                `json:"score"`
}

// PaymentReceipt is returned after settlement.
type PaymentReceipt struct {
	Session     *domain.PaymentSession `json:"session"`
	Transaction *domain.Transaction    `json:"transaction"`
	BlockIndex  int64                  `json:"block_index"`
	BlockHash   string                 `json:"block_hash"`
}

// InitiateSession opens a FacePay session for a vendor-entered amount.
func (s *Service) InitiateSession(ctx context.Context, vendorID uuid.UUID, amount int64) (*domain.PaymentSession, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	vendor, err := s.repo.FindAccountByID(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("find vendor: %w", err)
	}
	if !vendor.IsVendor() {
		return nil, ErrNotVendor
	}

	now := s.now()
	session := &domain.PaymentSession{
		ID:        uuid.New(),
		VendorID:  vendorID,
		Amount:    amount,
		Status:    domain.SessionInitiated,
		ExpiresAt: now.Add(s.settings.SessionTTL),
	}
	if err := s.repo.CreatePaymentSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	log.Printf("level=info component=facepay msg=\"session initiated\" session_id=%s vendor_id=%s amount=%d", session.ID, vendorID, amount)
	return session, nil
}

// ConfirmAmount records the customer's confirmation of the amount shown on the terminal.
func (s *Service) ConfirmAmount(ctx context.Context, vendorID, sessionID uuid.UUID, confirmed bool) (*domain.PaymentSession, error) {
	if _, err := s.loadSession(ctx, vendorID, sessionID, domain.SessionInitiated); err != nil {
		return nil, err
	}
	if !confirmed {
		return nil, ErrAmountNotConfirmed
	}
	return s.transition(ctx, sessionID, domain.SessionInitiated, domain.SessionUpdate{Status: domain.SessionAmountConfirmed})
}

// VerifyPhone resolves the paying customer and checks their FacePay enrollment and limit.
func (s *Service) VerifyPhone(ctx context.Context, vendorID, sessionID uuid.UUID, phone string) (*PhoneVerification, error) {
	session, err := s.loadSession(ctx, vendorID, sessionID, domain.SessionAmountConfirmed)
	if err != nil {
		return nil, err
	}

	customer, err := s.repo.FindAccountByMobile(ctx, phone)
	if err != nil {
		return nil, err
	}
	if customer.AccountType != domain.AccountTypeCustomer {
		return nil, store.ErrAccountNotFound
	}
	if _, err := s.activeTemplate(ctx, customer.ID, session.Amount); err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, sessionID, domain.SessionAmountConfirmed, domain.SessionUpdate{
		Status:        domain.SessionPhoneVerified,
		CustomerPhone: &customer.Mobile,
		CustomerID:    &customer.ID,
	})
	if err != nil {
		return nil, err
	}
	return &PhoneVerification{Session: updated, CustomerName: customer.Name}, nil
}

// VerifyFace matches a live capture against the customer's stored template.
func (s *Service) VerifyFace(ctx context.Context, vendorID, sessionID uuid.UUID, image []byte) (*FaceVerification, error) {
	session, err := s.loadSession(ctx, vendorID, sessionID, domain.SessionPhoneVerified)
	if err != nil {
		return nil, err
	}
	if err := s.checkVerificationAllowed(ctx, session); err != nil {
		return nil, err
	}
	tmpl, err := s.activeTemplate(ctx, *session.CustomerID, session.Amount)
	if err != nil {
		return nil, err
	}

	stored, err := s.templates.DecryptEmbedding(tmpl.EncryptedEmbedding)
	if err != nil {
		return nil, fmt.Errorf("decrypt stored template: %w", err)
	}
	live, err := s.embedder.GenerateEmbedding(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("generate live embedding: %w", err)
	}
	score, matched, err := s.scorer.Compare(stored, live)
	if err != nil {
		return nil, fmt.Errorf("score embeddings: %w", err)
	}

	if !matched {
		if _, err := s.transition(ctx, sessionID, domain.SessionPhoneVerified, domain.SessionUpdate{
			Status:    domain.SessionFaceVerificationFailed,
			FaceScore: &score,
		}); err != nil {
			return nil, err
		}
		log.Printf("level=warn component=facepay msg=\"face mismatch\" session_id=%s score=%.4f threshold=%.4f", sessionID, score, s.scorer.Threshold)
		s.recordVerificationFailure(ctx, session)
		return nil, ErrFaceMismatch
	}

	updated, err := s.transition(ctx, sessionID, domain.SessionPhoneVerified, domain.SessionUpdate{
		Status:    domain.SessionFaceVerified,
		FaceScore: &score,
	})
	if err != nil {
		return nil, err
	}
	return &FaceVerification{Session: updated, Score: score}, nil
}

// VerifyPIN checks the FacePay PIN and, on a match, settles the payment.
func (s *Service) VerifyPIN(ctx context.Context, vendorID, sessionID uuid.UUID, pin string) (*PaymentReceipt, error) {
	session, err := s.loadSession(ctx, vendorID, sessionID, domain.SessionFaceVerified)
	if err != nil {
		return nil, err
	}
	if err := s.checkVerificationAllowed(ctx, session); err != nil {
		return nil, err
	}
	tmpl, err := s.activeTemplate(ctx, *session.CustomerID, session.Amount)
	if err != nil {
		return nil, err
	}

	storedPIN, err := s.pins.DecryptPIN(tmpl.EncryptedPIN)
	if err != nil {
		return nil, fmt.Errorf("decrypt stored pin: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(storedPIN), []byte(pin)) != 1 {
		if _, err := s.transition(ctx, sessionID, domain.SessionFaceVerified, domain.SessionUpdate{
			Status: domain.SessionPINVerificationFailed,
		}); err != nil {
			return nil, err
		}
		log.Printf("level=warn component=facepay msg=\"pin mismatch\" session_id=%s", sessionID)
		s.recordVerificationFailure(ctx, session)
		return nil, ErrPINMismatch
	}

	return s.settleSession(ctx, session)
}

// settleSession claims the session and moves the funds in one unit of work.
func (s *Service) settleSession(ctx context.Context, session *domain.PaymentSession) (*PaymentReceipt, error) {
	txnID := uuid.New()
	var (
		result  *settlement
		claimed *domain.PaymentSession
	)

	err := s.repo.WithinTransaction(ctx, func(tx store.Tx) error {
		var err error
		claimed, err = tx.TransitionPaymentSession(ctx, session.ID, domain.SessionFaceVerified, domain.SessionUpdate{
			Status:        domain.SessionCompleted,
			TransactionID: &txnID,
			At:            s.now(),
		})
		if err != nil {
			switch {
			case errors.Is(err, store.ErrSessionStateConflict):
				return fmt.Errorf("%w: session already settled or failed", ErrInvalidSessionState)
			case errors.Is(err, store.ErrSessionExpired):
				return ErrSessionExpired
			}
			return err
		}

		customer, err := tx.FindAccountByID(ctx, *session.CustomerID)
		if err != nil {
			return fmt.Errorf("find customer: %w", err)
		}
		vendor, err := tx.FindAccountByID(ctx, session.VendorID)
		if err != nil {
			return fmt.Errorf("find vendor: %w", err)
		}
		tmpl, err := tx.FindFaceTemplateByAccountID(ctx, customer.ID)
		if err != nil {
			return err
		}
		if !tmpl.Active {
			return ErrFacePayDisabled
		}
		if session.Amount > tmpl.FacePayLimit {
			return ErrFacePayLimitExceeded
		}

		remarks := "FacePay payment to " + vendor.Name
		result, err = s.moveFunds(ctx, tx, customer, vendor, session.Amount, remarks, domain.PaymentMethodFacePay, &session.ID, txnID)
		return err
	})
	if err != nil {
		log.Printf("level=warn component=facepay msg=\"settlement rolled back\" session_id=%s err=%v", session.ID, err)
		return nil, err
	}

	log.Printf("level=info component=facepay msg=\"payment settled\" session_id=%s transaction_id=%s block_index=%d", session.ID, txnID, result.Block.Index)

	s.resetVerificationFailures(ctx, session)

	s.notifyFacePaySettlement(ctx, session.ID, result)
	s.publish(ctx, domain.EventPaymentCompleted, domain.PaymentCompletedEvent{
		EventID:       uuid.NewString(),
		EventType:     domain.EventPaymentCompleted,
		SessionID:     session.ID.String(),
		TransactionID: txnID.String(),
		VendorID:      session.VendorID.String(),
		CustomerID:    session.CustomerID.String(),
		Amount:        session.Amount,
		BlockIndex:    result.Block.Index,
		BlockHash:     result.Block.Hash,
		OccurredAt:    s.now().UTC(),
	})

	return &PaymentReceipt{
		Session:     claimed,
		Transaction: result.Transaction,
		BlockIndex:  result.Block.Index,
		BlockHash:   result.Block.Hash,
	}, nil
}

// GetSession returns a vendor's session without any state requirement.
func (s *Service) GetSession(ctx context.Context, vendorID, sessionID uuid.UUID) (*domain.PaymentSession, error) {
	session, err := s.repo.FindPaymentSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.VendorID != vendorID {
		return nil, ErrSessionForbidden
	}
	return session, nil
}

// loadSession enforces ownership, expiry and the expected state for a transition.
func (s *Service) loadSession(ctx context.Context, vendorID, sessionID uuid.UUID, expected domain.SessionStatus) (*domain.PaymentSession, error) {
	session, err := s.GetSession(ctx, vendorID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Expired(s.now()) {
		return nil, ErrSessionExpired
	}
	if session.Status != expected {
		return nil, fmt.Errorf("%w: status is %s, want %s", ErrInvalidSessionState, session.Status, expected)
	}
	if expected != domain.SessionInitiated && expected != domain.SessionAmountConfirmed && session.CustomerID == nil {
		return nil, fmt.Errorf("%w: customer not resolved", ErrInvalidSessionState)
	}
	return session, nil
}

func (s *Service) transition(ctx context.Context, sessionID uuid.UUID, from domain.SessionStatus, update domain.SessionUpdate) (*domain.PaymentSession, error) {
	if update.At.IsZero() {
		update.At = s.now()
	}
	updated, err := s.repo.TransitionPaymentSession(ctx, sessionID, from, update)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSessionStateConflict):
			return nil, fmt.Errorf("%w: concurrent transition from %s", ErrInvalidSessionState, from)
		case errors.Is(err, store.ErrSessionExpired):
			return nil, ErrSessionExpired
		}
		return nil, err
	}
	return updated, nil
}

// activeTemplate loads the customer's template and checks it can pay amount.
func (s *Service) activeTemplate(ctx context.Context, customerID uuid.UUID, amount int64) (*domain.FaceTemplate, error) {
	tmpl, err := s.repo.FindFaceTemplateByAccountID(ctx, customerID)
	if err != nil {
		if errors.Is(err, store.ErrFaceTemplateNotFound) {
			return nil, ErrFacePayNotRegistered
		}
		return nil, err
	}
	if !tmpl.Complete() {
		return nil, ErrFacePayNotRegistered
	}
	if !tmpl.Active {
		return nil, ErrFacePayDisabled
	}
	if amount > tmpl.FacePayLimit {
		return nil, ErrFacePayLimitExceeded
	}
	return tmpl, nil
}

// checkVerificationAllowed refuses a face or PIN check once the vendor has failed too
// often against this customer. The limiter fails open.
func (s *Service) checkVerificationAllowed(ctx context.Context, session *domain.PaymentSession) error {
	if s.limiter == nil {
		return nil
	}
	decision, err := s.limiter.Check(ctx, session.VendorID, *session.CustomerID)
	if err != nil {
		log.Printf("level=warn component=facepay msg=\"verification limiter unavailable\" session_id=%s err=%v", session.ID, err)
		return nil
	}
	if !decision.Allowed {
		log.Printf("level=warn component=facepay msg=\"verification blocked\" session_id=%s vendor_id=%s customer_id=%s failures=%d", session.ID, session.VendorID, *session.CustomerID, decision.Failures)
		return &RateLimitedError{RetryAfterSeconds: retryAfterSeconds(decision.RetryAfter)}
	}
	return nil
}

func (s *Service) recordVerificationFailure(ctx context.Context, session *domain.PaymentSession) {
	if s.limiter == nil {
		return
	}
	decision, err := s.limiter.RecordFailure(ctx, session.VendorID, *session.CustomerID)
	if err != nil {
		log.Printf("level=warn component=facepay msg=\"verification failure not recorded\" session_id=%s err=%v", session.ID, err)
		return
	}
	if !decision.Allowed {
		log.Printf("level=warn component=facepay msg=\"verification failure limit reached\" vendor_id=%s customer_id=%s failures=%d", session.VendorID, *session.CustomerID, decision.Failures)
	}
}

func (s *Service) resetVerificationFailures(ctx context.Context, session *domain.PaymentSession) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Reset(ctx, session.VendorID, *session.CustomerID); err != nil {
		log.Printf("level=warn component=facepay msg=\"verification failures not cleared\" session_id=%s err=%v", session.ID, err)
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
