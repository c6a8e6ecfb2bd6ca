package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/transfa/facepay-service/internal/store"
)

type stubRepudiator struct {
	err     error
	calls   int
	session uuid.UUID
	reason  string
}

func (s *stubRepudiator) ReportUnauthorized(_ context.Context, sessionID uuid.UUID, reason string) error {
	s.calls++
	s.session = sessionID
	s.reason = reason
	return s.err
}

func TestRepudiationConsumerHandleMessage(t *testing.T) {
	sessionID := uuid.New()
	valid := []byte(fmt.Sprintf(`{"event_type":"facepay.repudiation.reported","session_id":%q,"reason":"card_stolen"}`, sessionID))

	cases := []struct {
		name      string
		body      []byte
		err       error
		wantAck   bool
		wantCalls int
	}{
		{"malformed json is dropped", []byte("{"), nil, true, 0},
		{"invalid session id is dropped", []byte(`{"session_id":"nope"}`), nil, true, 0},
		{"processed", valid, nil, true, 1},
		{"unknown session is acked", valid, store.ErrSessionNotFound, true, 1},
		{"unregistered customer is acked", valid, fmt.Errorf("wrap: %w", ErrFacePayNotRegistered), true, 1},
		{"transient failure is requeued", valid, errors.New("connection reset"), false, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubRepudiator{err: tc.err}
			consumer := NewRepudiationConsumer(stub)

			if got := consumer.HandleMessage(tc.body); got != tc.wantAck {
				t.Fatalf("expected ack=%v, got %v", tc.wantAck, got)
			}
			if stub.calls != tc.wantCalls {
				t.Fatalf("expected %d calls, got %d", tc.wantCalls, stub.calls)
			}
			if tc.wantCalls == 1 && (stub.session != sessionID || stub.reason != "card_stolen") {
				t.Fatalf("unexpected call session=%s reason=%s", stub.session, stub.reason)
			}
		})
	}
}

func TestRepudiationConsumerDefaultsReason(t *testing.T) {
	stub := &stubRepudiator{}
	body := []byte(fmt.Sprintf(`{"session_id":" %s "}`, uuid.New()))

	if !NewRepudiationConsumer(stub).HandleMessage(body) {
		t.Fatal("expected message to be acked")
	}
	if stub.reason != "reported_unauthorized" {
		t.Fatalf("expected default reason, got %q", stub.reason)
	}
}
