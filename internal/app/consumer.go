package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/facepay-service/internal/domain"
	"github.com/transfa/facepay-service/internal/store"
)

// Repudiator disables FacePay for the customer behind a session.
type Repudiator interface {
	ReportUnauthorized(ctx context.Context, sessionID uuid.UUID, reason string) error
}

// RepudiationConsumer handles facepay.repudiation.reported events from support tooling
// and the customer notification links.
type RepudiationConsumer struct {
	svc Repudiator
}

func NewRepudiationConsumer(svc Repudiator) *RepudiationConsumer {
	return &RepudiationConsumer{svc: svc}
}

// HandleMessage returns true to ack and false to requeue.
func (c *RepudiationConsumer) HandleMessage(body []byte) bool {
	var event domain.RepudiationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=repudiation_consumer msg=\"failed to unmarshal payload\" err=%v", err)
		return true
	}

	sessionID, err := uuid.Parse(strings.TrimSpace(event.SessionID))
	if err != nil {
		log.Printf("level=error component=repudiation_consumer msg=\"invalid session id\" session_id=%q", event.SessionID)
		return true
	}
	reason := strings.TrimSpace(event.Reason)
	if reason == "" {
		reason = "reported_unauthorized"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.svc.ReportUnauthorized(ctx, sessionID, reason); err != nil {
		switch {
		case errors.Is(err, store.ErrSessionNotFound),
			errors.Is(err, ErrFacePayNotRegistered),
			errors.Is(err, ErrInvalidSessionState):
			log.Printf("level=warn component=repudiation_consumer msg=\"repudiation not applicable; acknowledging\" session_id=%s err=%v", sessionID, err)
			return true
		}
		log.Printf("level=error component=repudiation_consumer msg=\"processing error\" session_id=%s err=%v", sessionID, err)
		return false
	}
	return true
}
