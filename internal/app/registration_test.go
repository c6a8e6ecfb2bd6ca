package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/transfa/facepay-service/internal/domain"
	"github.com/transfa/facepay-service/internal/store"
)

func TestRegisterFacePayStoresEncryptedTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	delete(f.repo.templates, f.customer.ID)
	f.embedder.vec = []float32{0.25, -0.5, 0.75, 1}

	status, err := f.svc.RegisterFacePay(ctx, RegisterFacePayRequest{
		AccountID: f.customer.ID,
		Image:     []byte("selfie"),
		PIN:       "135790",
	})
	if err != nil {
		t.Fatalf("RegisterFacePay returned error: %v", err)
	}
	if !status.Registered || !status.Active || !status.PINSet {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.FacePayLimit != 500000 {
		t.Fatalf("expected default limit 500000, got %d", status.FacePayLimit)
	}

	tmpl := f.repo.templates[f.customer.ID]
	if tmpl.EncryptedPIN == "135790" {
		t.Fatal("pin stored in plaintext")
	}
	vec, err := f.svc.templates.DecryptEmbedding(tmpl.EncryptedEmbedding)
	if err != nil {
		t.Fatalf("DecryptEmbedding returned error: %v", err)
	}
	if len(vec) != 4 || vec[1] != -0.5 {
		t.Fatalf("unexpected stored embedding %v", vec)
	}
	pin, err := f.svc.pins.DecryptPIN(tmpl.EncryptedPIN)
	if err != nil || pin != "135790" {
		t.Fatalf("expected stored pin to decrypt to 135790, got %q err=%v", pin, err)
	}
}

func TestRegisterFacePayReenrollmentReplacesTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.repo.templates[f.customer.ID]
	f.embedder.vec = []float32{1, 0, 0, 0}

	if _, err := f.svc.RegisterFacePay(ctx, RegisterFacePayRequest{
		AccountID: f.customer.ID, Image: []byte("new"), PIN: "111222", Limit: 7500,
	}); err != nil {
		t.Fatalf("RegisterFacePay returned error: %v", err)
	}

	after := f.repo.templates[f.customer.ID]
	if after.ID != before.ID {
		t.Fatalf("expected template id to be kept on re-enrollment")
	}
	if after.FacePayLimit != 7500 || after.EncryptedEmbedding == before.EncryptedEmbedding {
		t.Fatalf("template was not replaced: %+v", after)
	}
}

func TestRegisterFacePayValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.embedder.vec = f.storedVec

	cases := []struct {
		name string
		req  RegisterFacePayRequest
		want error
	}{
		{"short pin", RegisterFacePayRequest{AccountID: f.customer.ID, PIN: "1234"}, ErrInvalidPIN},
		{"letters in pin", RegisterFacePayRequest{AccountID: f.customer.ID, PIN: "12a456"}, ErrInvalidPIN},
		{"negative limit", RegisterFacePayRequest{AccountID: f.customer.ID, PIN: "123456", Limit: -1}, ErrInvalidAmount},
		{"vendor account", RegisterFacePayRequest{AccountID: f.vendor.ID, PIN: "123456"}, ErrNotCustomer},
		{"unknown account", RegisterFacePayRequest{AccountID: uuid.New(), PIN: "123456"}, store.ErrAccountNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.RegisterFacePay(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestFacePayStatusForUnregisteredAccount(t *testing.T) {
	f := newFixture(t)
	status, err := f.svc.FacePayStatus(context.Background(), f.vendor.ID)
	if err != nil {
		t.Fatalf("FacePayStatus returned error: %v", err)
	}
	if status.Registered || status.Active || status.PINSet {
		t.Fatalf("expected empty status, got %+v", status)
	}
}

func TestToggleFacePay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.svc.ToggleFacePay(ctx, f.customer.ID, false)
	if err != nil {
		t.Fatalf("ToggleFacePay(false) returned error: %v", err)
	}
	if status.Active || f.repo.templates[f.customer.ID].Active {
		t.Fatal("expected template to be disabled")
	}

	status, err = f.svc.ToggleFacePay(ctx, f.customer.ID, true)
	if err != nil {
		t.Fatalf("ToggleFacePay(true) returned error: %v", err)
	}
	if !status.Active {
		t.Fatal("expected template to be enabled")
	}

	if _, err := f.svc.ToggleFacePay(ctx, f.vendor.ID, true); !errors.Is(err, ErrFacePayNotRegistered) {
		t.Fatalf("expected ErrFacePayNotRegistered, got %v", err)
	}
}

func TestToggleFacePayCannotEnableIncompleteEnrollment(t *testing.T) {
	f := newFixture(t)
	tmpl := f.repo.templates[f.customer.ID]
	tmpl.EncryptedPIN = ""
	tmpl.Active = false
	f.repo.templates[f.customer.ID] = tmpl

	if _, err := f.svc.ToggleFacePay(context.Background(), f.customer.ID, true); !errors.Is(err, ErrFacePayNotRegistered) {
		t.Fatalf("expected ErrFacePayNotRegistered, got %v", err)
	}
}

func TestConfirmTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("yes keeps facepay enabled", func(t *testing.T) {
		f := newFixture(t)
		session := f.advanceTo(t, 100, domain.SessionFaceVerified)
		msg, err := f.svc.ConfirmTransaction(ctx, session.ID, "yes")
		if err != nil {
			t.Fatalf("ConfirmTransaction returned error: %v", err)
		}
		if msg == "" || !f.repo.templates[f.customer.ID].Active {
			t.Fatalf("unexpected result msg=%q active=%v", msg, f.repo.templates[f.customer.ID].Active)
		}
	})

	t.Run("no disables facepay and notifies", func(t *testing.T) {
		f := newFixture(t)
		session := f.advanceTo(t, 100, domain.SessionFaceVerified)
		if _, err := f.svc.VerifyPIN(ctx, f.vendor.ID, session.ID, fixturePIN); err != nil {
			t.Fatalf("VerifyPIN returned error: %v", err)
		}
		f.notifier.sent = nil

		if _, err := f.svc.ConfirmTransaction(ctx, session.ID, "no"); err != nil {
			t.Fatalf("ConfirmTransaction returned error: %v", err)
		}
		if f.repo.templates[f.customer.ID].Active {
			t.Fatal("expected facepay to be disabled")
		}
		if len(f.notifier.sent) != 1 || f.notifier.sent[0].msg.Template != TemplateFacePayDisabled {
			t.Fatalf("expected one facepay_disabled notification, got %+v", f.notifier.sent)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.svc.ConfirmTransaction(ctx, uuid.New(), "maybe"); err == nil {
			t.Fatal("expected an error for an unknown action")
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.svc.ConfirmTransaction(ctx, uuid.New(), "yes"); !errors.Is(err, store.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestReportUnauthorizedRequiresCustomer(t *testing.T) {
	f := newFixture(t)
	session := f.advanceTo(t, 100, domain.SessionAmountConfirmed)

	err := f.svc.ReportUnauthorized(context.Background(), session.ID, "test")
	if !errors.Is(err, ErrInvalidSessionState) {
		t.Fatalf("expected ErrInvalidSessionState, got %v", err)
	}
}

func TestReportUnauthorizedRequiresSettledPayment(t *testing.T) {
	ctx := context.Background()

	for _, status := range []domain.SessionStatus{domain.SessionPhoneVerified, domain.SessionFaceVerified} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			session := f.advanceTo(t, 100, status)

			_, err := f.svc.ConfirmTransaction(ctx, session.ID, "no")
			if !errors.Is(err, ErrInvalidSessionState) {
				t.Fatalf("expected ErrInvalidSessionState, got %v", err)
			}
			if !f.repo.templates[f.customer.ID].Active {
				t.Fatal("facepay must stay enabled for an unsettled session")
			}
			if len(f.notifier.sent) != 0 {
				t.Fatalf("expected no notification, got %+v", f.notifier.sent)
			}
		})
	}

	t.Run("failed pin attempt", func(t *testing.T) {
		f := newFixture(t)
		session := f.advanceTo(t, 100, domain.SessionFaceVerified)
		if _, err := f.svc.VerifyPIN(ctx, f.vendor.ID, session.ID, "000000"); !errors.Is(err, ErrPINMismatch) {
			t.Fatalf("expected ErrPINMismatch, got %v", err)
		}

		if err := f.svc.ReportUnauthorized(ctx, session.ID, "test"); !errors.Is(err, ErrInvalidSessionState) {
			t.Fatalf("expected ErrInvalidSessionState, got %v", err)
		}
		if !f.repo.templates[f.customer.ID].Active {
			t.Fatal("facepay must stay enabled after a failed attempt")
		}
	})
}
