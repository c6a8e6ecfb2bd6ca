package domain

import (
	"time"

	"github.com/google/uuid"
)

// FaceTemplate is a customer's enrolled biometric template and FacePay PIN.
// EncryptedEmbedding is base64(IV || AES-CBC(float32 LE vector)); EncryptedPIN is base64 RSA-OAEP.
type FaceTemplate struct {
	ID                 uuid.UUID `json:"id"`
	AccountID          uuid.UUID `json:"account_id"`
	EncryptedEmbedding string    `json:"-"`
	EncryptedPIN       string    `json:"-"`
	FacePayLimit       int64     `json:"facepay_limit"`
	Active             bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Complete reports whether both the embedding and the PIN are enrolled.
func (t FaceTemplate) Complete() bool {
	return t.EncryptedEmbedding != "" && t.EncryptedPIN != ""
}

// FacePayStatus is the customer-facing view of a template.
type FacePayStatus struct {
	Registered   bool  `json:"registered"`
	Active       bool  `json:"is_active"`
	FacePayLimit int64 `json:"facepay_limit"`
	PINSet       bool  `json:"pin_set"`
}

// SessionStatus is a PaymentSession state.
type SessionStatus string

const (
	SessionInitiated              SessionStatus = "initiated"
	SessionAmountConfirmed        SessionStatus = "amount_confirmed"
	SessionPhoneVerified          SessionStatus = "phone_verified"
	SessionFaceVerified           SessionStatus = "face_verified"
	SessionCompleted              SessionStatus = "completed"
	SessionFaceVerificationFailed SessionStatus = "face_verification_failed"
	SessionPINVerificationFailed  SessionStatus = "pin_verification_failed"
)

// Terminal reports whether no further transition is possible.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFaceVerificationFailed, SessionPINVerificationFailed:
		return true
	}
	return false
}

// PaymentSession tracks one vendor-initiated FacePay attempt.
type PaymentSession struct {
	ID            uuid.UUID     `json:"session_id"`
	VendorID      uuid.UUID     `json:"vendor_id"`
	Amount        int64         `json:"amount"`
	Status        SessionStatus `json:"status"`
	CustomerPhone *string       `json:"customer_phone,omitempty"`
	CustomerID    *uuid.UUID    `json:"customer_id,omitempty"`
	FaceScore     *float64      `json:"face_score,omitempty"`
	TransactionID *uuid.UUID    `json:"transaction_id,omitempty"`
	ExpiresAt     time.Time     `json:"expires_at"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Expired reports whether now is at or past the session expiry.
func (s PaymentSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionUpdate carries the fields a transition sets. Nil fields are left unchanged.
// A non-zero At makes the transition fail once the session is expired at that instant.
type SessionUpdate struct {
	Status        SessionStatus
	CustomerPhone *string
	CustomerID    *uuid.UUID
	FaceScore     *float64
	TransactionID *uuid.UUID
	At            time.Time
}
