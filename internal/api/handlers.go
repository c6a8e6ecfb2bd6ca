/**
 * @description
 * This file contains the shared plumbing for the facepay-service HTTP handlers: the
 * service contract the handlers call, JSON helpers and the mapping from service errors
 * to HTTP status codes.
 *
 * @dependencies
 * - internal/app, internal/store: service logic and its sentinel errors.
 * - pkg/embeddingclient, pkg/similarity: embedding failures surfaced to clients.
 */

package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/transfa/facepay-service/internal/app"
	"github.com/transfa/facepay-service/internal/domain"
	"github.com/transfa/facepay-service/internal/ledger"
	"github.com/transfa/facepay-service/internal/store"
	"github.com/transfa/facepay-service/pkg/embeddingclient"
	"github.com/transfa/facepay-service/pkg/similarity"
)

// maxBodyBytes bounds request bodies; face captures arrive base64-encoded.
const maxBodyBytes = 10 << 20

// Service is the application surface used by the handlers. Satisfied by *app.Service.
type Service interface {
	Login(ctx context.Context, mobile, pin string) (*app.LoginResult, error)
	RegisterAccount(ctx context.Context, req app.RegisterAccountRequest) (*app.LoginResult, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (*app.AccountBalance, error)
	Dashboard(ctx context.Context, accountID uuid.UUID) (*app.Dashboard, error)
	Deposit(ctx context.Context, req app.DepositRequest) (*app.DepositReceipt, error)

	InitiateSession(ctx context.Context, vendorID uuid.UUID, amount int64) (*domain.PaymentSession, error)
	GetSession(ctx context.Context, vendorID, sessionID uuid.UUID) (*domain.PaymentSession, error)
	ConfirmAmount(ctx context.Context, vendorID, sessionID uuid.UUID, confirmed bool) (*domain.PaymentSession, error)
	VerifyPhone(ctx context.Context, vendorID, sessionID uuid.UUID, phone string) (*app.PhoneVerification, error)
	VerifyFace(ctx context.Context, vendorID, sessionID uuid.UUID, image []byte) (*app.FaceVerification, error)
	VerifyPIN(ctx context.Context, vendorID, sessionID uuid.UUID, pin string) (*app.PaymentReceipt, error)

	RegisterFacePay(ctx context.Context, req app.RegisterFacePayRequest) (*domain.FacePayStatus, error)
	FacePayStatus(ctx context.Context, accountID uuid.UUID) (*domain.FacePayStatus, error)
	ToggleFacePay(ctx context.Context, accountID uuid.UUID, enabled bool) (*domain.FacePayStatus, error)
	ConfirmTransaction(ctx context.Context, sessionID uuid.UUID, action string) (string, error)

	Transfer(ctx context.Context, req app.TransferRequest) (*app.TransferReceipt, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error)

	ListBlocks(ctx context.Context) ([]ledger.Block, error)
	ValidateLedger(ctx context.Context) (ledger.ValidationReport, error)
}

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service Service
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service Service) *Handlers {
	return &Handlers{service: service}
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if idx := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && idx >= 0 {
		encoded = encoded[idx+1:]
	}
	if encoded == "" {
		return nil, embeddingclient.ErrInvalidImage
	}
	img, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, embeddingclient.ErrInvalidImage
	}
	return img, nil
}

func accountFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := GetAccountID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Could not get account ID from context")
		return uuid.Nil, false
	}
	return id, true
}

func sessionFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session ID format")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps service errors to status codes. Face and PIN failures share
// one message so callers cannot tell which factor failed.
func writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	var rl *app.RateLimitedError
	switch {
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, "Too many verification attempts. Please wait and try again.")
	case errors.Is(err, app.ErrFaceMismatch), errors.Is(err, app.ErrPINMismatch):
		writeError(w, http.StatusUnauthorized, "Payment verification failed")
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, store.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, app.ErrSessionExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, app.ErrSessionForbidden), errors.Is(err, app.ErrNotVendor), errors.Is(err, app.ErrNotCustomer):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrInvalidSessionState),
		errors.Is(err, store.ErrDuplicateMobile),
		errors.Is(err, store.ErrDuplicateAccount):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Payment session not found")
	case errors.Is(err, store.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, app.ErrFacePayNotRegistered):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrFacePayDisabled), errors.Is(err, app.ErrFacePayLimitExceeded):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, similarity.ErrDimensionMismatch), errors.Is(err, embeddingclient.ErrUnexpectedDimension):
		log.Printf("level=error component=api endpoint=%s outcome=failed msg=\"embedding dimension drift between stored templates and embedding model\" err=%v", endpoint, err)
		writeError(w, http.StatusInternalServerError, "Face verification is temporarily unavailable")
	case errors.Is(err, embeddingclient.ErrFaceNotDetected):
		writeError(w, http.StatusUnprocessableEntity, "No face detected in image")
	case errors.Is(err, embeddingclient.ErrInvalidImage),
		errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrAmountNotConfirmed),
		errors.Is(err, app.ErrInvalidPIN),
		errors.Is(err, app.ErrInvalidLoginPIN),
		errors.Is(err, app.ErrInvalidAccount),
		errors.Is(err, app.ErrSelfTransfer):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("level=error component=api endpoint=%s outcome=failed err=%v", endpoint, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
