package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/transfa/facepay-service/internal/domain"
	"github.com/transfa/facepay-service/internal/store"
)

const facePayPINLength = 6

// RegisterFacePayRequest enrolls or re-enrolls a customer.
type RegisterFacePayRequest struct {
	AccountID uuid.UUID
	Image     []byte
	PIN       string
	Limit     int64
}

// RegisterFacePay encrypts a fresh embedding and PIN and stores them as the customer's active template.
func (s *Service) RegisterFacePay(ctx context.Context, req RegisterFacePayRequest) (*domain.FacePayStatus, error) {
	if !isDigitPIN(req.PIN, facePayPINLength) {
		return nil, ErrInvalidPIN
	}
	limit := req.Limit
	if limit < 0 {
		return nil, ErrInvalidAmount
	}
	if limit == 0 {
		limit = s.settings.DefaultFacePayLimit
	}

	account, err := s.repo.FindAccountByID(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if account.AccountType != domain.AccountTypeCustomer {
		return nil, ErrNotCustomer
	}

	vec, err := s.embedder.GenerateEmbedding(ctx, req.Image)
	if err != nil {
		return nil, fmt.Errorf("generate embedding: %w", err)
	}
	encryptedEmbedding, err := s.templates.EncryptEmbedding(vec)
	if err != nil {
		return nil, fmt.Errorf("encrypt embedding: %w", err)
	}
	encryptedPIN, err := s.pins.EncryptPIN(req.PIN)
	if err != nil {
		return nil, fmt.Errorf("encrypt pin: %w", err)
	}

	tmpl := &domain.FaceTemplate{
		AccountID:          account.ID,
		EncryptedEmbedding: encryptedEmbedding,
		EncryptedPIN:       encryptedPIN,
		FacePayLimit:       limit,
		Active:             true,
	}
	if err := s.repo.UpsertFaceTemplate(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("store face template: %w", err)
	}

	log.Printf("level=info component=facepay msg=\"facepay registered\" account_id=%s limit=%d dims=%d", account.ID, limit, len(vec))
	return statusFromTemplate(tmpl), nil
}

// FacePayStatus reports the customer's enrollment state.
func (s *Service) FacePayStatus(ctx context.Context, accountID uuid.UUID) (*domain.FacePayStatus, error) {
	tmpl, err := s.repo.FindFaceTemplateByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrFaceTemplateNotFound) {
			return &domain.FacePayStatus{}, nil
		}
		return nil, err
	}
	return statusFromTemplate(tmpl), nil
}

// ToggleFacePay enables or disables the template. Enabling needs a complete enrollment.
func (s *Service) ToggleFacePay(ctx context.Context, accountID uuid.UUID, enabled bool) (*domain.FacePayStatus, error) {
	tmpl, err := s.repo.FindFaceTemplateByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrFaceTemplateNotFound) {
			return nil, ErrFacePayNotRegistered
		}
		return nil, err
	}
	if enabled && !tmpl.Complete() {
		return nil, ErrFacePayNotRegistered
	}
	if err := s.repo.SetFaceTemplateActive(ctx, accountID, enabled); err != nil {
		return nil, err
	}
	tmpl.Active = enabled
	log.Printf("level=info component=facepay msg=\"facepay toggled\" account_id=%s enabled=%t", accountID, enabled)
	return statusFromTemplate(tmpl), nil
}

// ConfirmTransaction handles the customer's answer to the post-payment "was this you?" prompt.
// Answering "no" disables FacePay for the customer.
func (s *Service) ConfirmTransaction(ctx context.Context, sessionID uuid.UUID, action string) (string, error) {
	switch action {
	case "yes":
		if _, err := s.repo.FindPaymentSession(ctx, sessionID); err != nil {
			return "", err
		}
		return "Thank you for confirming your transaction.", nil
	case "no":
		if err := s.ReportUnauthorized(ctx, sessionID, "customer_reported_not_me"); err != nil {
			return "", err
		}
		return "FacePay has been disabled for your account. Please contact your bank.", nil
	default:
		return "", fmt.Errorf("unsupported action %q", action)
	}
}

// ReportUnauthorized deactivates the template of the customer who paid in sessionID.
func (s *Service) ReportUnauthorized(ctx context.Context, sessionID uuid.UUID, reason string) error {
	session, err := s.repo.FindPaymentSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.CustomerID == nil {
		return fmt.Errorf("%w: session has no customer", ErrInvalidSessionState)
	}
	if session.Status != domain.SessionCompleted || session.TransactionID == nil {
		return fmt.Errorf("%w: only a settled payment can be reported, status is %s", ErrInvalidSessionState, session.Status)
	}

	if err := s.repo.SetFaceTemplateActive(ctx, *session.CustomerID, false); err != nil {
		if errors.Is(err, store.ErrFaceTemplateNotFound) {
			return ErrFacePayNotRegistered
		}
		return err
	}
	log.Printf("level=warn component=facepay msg=\"facepay disabled after repudiation\" session_id=%s customer_id=%s reason=%s", sessionID, *session.CustomerID, reason)

	if customer, err := s.repo.FindAccountByID(ctx, *session.CustomerID); err == nil {
		s.notify(ctx, customer, Notification{
			Template: TemplateFacePayDisabled,
			Subject:  "FacePay disabled on your account",
			Data: map[string]string{
				"session_id": sessionID.String(),
				"reason":     reason,
			},
		})
	}
	return nil
}

func statusFromTemplate(tmpl *domain.FaceTemplate) *domain.FacePayStatus {
	return &domain.FacePayStatus{
		Registered:   tmpl.EncryptedEmbedding != "",
		Active:       tmpl.Active,
		FacePayLimit: tmpl.FacePayLimit,
		PINSet:       tmpl.EncryptedPIN != "",
	}
}
