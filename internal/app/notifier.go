package app

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/facepay-service/internal/domain"
	"github.com/transfa/facepay-service/pkg/rabbitmq"
)

const (
	TemplateFacePayDebit    = "facepay_debit"
	TemplateFacePayCredit   = "facepay_credit"
	TemplateTransferDebit   = "transfer_debit"
	TemplateTransferCredit  = "transfer_credit"
	TemplateFacePayDisabled = "facepay_disabled"
	TemplateDepositCredit   = "deposit_credit"
)

// Notification is a message addressed to one account holder.
type Notification struct {
	Template string
	Subject  string
	Data     map[string]string
}

// Notifier delivers notifications. Implementations may be slow or fail; callers only log errors.
type Notifier interface {
	Notify(ctx context.Context, recipient domain.Account, n Notification) error
}

// EventNotifier hands notifications to the notification pipeline over RabbitMQ.
type EventNotifier struct {
	publisher rabbitmq.Publisher
	now       func() time.Time
}

// NewEventNotifier returns a Notifier that publishes notification.email.requested events.
func NewEventNotifier(publisher rabbitmq.Publisher) *EventNotifier {
	return &EventNotifier{publisher: publisher, now: time.Now}
}

func (n *EventNotifier) Notify(ctx context.Context, recipient domain.Account, msg Notification) error {
	if recipient.Email == "" {
		log.Printf("level=info component=notifier msg=\"recipient has no email; skipping\" account_id=%s template=%s", recipient.ID, msg.Template)
		return nil
	}
	event := domain.NotificationEvent{
		EventID:    uuid.NewString(),
		EventType:  domain.EventNotificationRequested,
		Template:   msg.Template,
		Recipient:  recipient.Email,
		Name:       recipient.Name,
		Subject:    msg.Subject,
		Data:       msg.Data,
		OccurredAt: n.now().UTC(),
	}
	return n.publisher.PublishEvent(ctx, domain.EventNotificationRequested, event)
}

// LogNotifier only logs; used when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, recipient domain.Account, msg Notification) error {
	log.Printf("level=info component=notifier mode=log msg=\"notification\" account_id=%s template=%s subject=%q", recipient.ID, msg.Template, msg.Subject)
	return nil
}

// notify sends without failing the caller.
func (s *Service) notify(ctx context.Context, recipient *domain.Account, msg Notification) {
	if recipient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.notifier.Notify(ctx, *recipient, msg); err != nil {
		log.Printf("level=warn component=notifier msg=\"notification failed\" account_id=%s template=%s err=%v", recipient.ID, msg.Template, err)
	}
}

// verificationLink builds the "was this you?" link sent to the customer after a FacePay debit.
func (s *Service) verificationLink(sessionID uuid.UUID, action string) string {
	q := url.Values{}
	q.Set("session", sessionID.String())
	q.Set("action", action)
	return fmt.Sprintf("%s/verify-transaction?%s", s.settings.FrontendURL, q.Encode())
}

func (s *Service) notifyFacePaySettlement(ctx context.Context, sessionID uuid.UUID, st *settlement) {
	amount := FormatMinorUnits(st.Transaction.Amount)
	timestamp := st.Transaction.CreatedAt.Format(time.RFC3339)

	s.notify(ctx, st.Sender, Notification{
		Template: TemplateFacePayDebit,
		Subject:  "FacePay payment of " + amount,
		Data: map[string]string{
			"amount":         amount,
			"merchant":       st.Receiver.Name,
			"transaction_id": st.Transaction.ID.String(),
			"timestamp":      timestamp,
			"confirm_url":    s.verificationLink(sessionID, "yes"),
			"not_me_url":     s.verificationLink(sessionID, "no"),
			"ledger_block":   fmt.Sprintf("%d", st.Block.Index),
		},
	})
	s.notify(ctx, st.Receiver, Notification{
		Template: TemplateFacePayCredit,
		Subject:  "FacePay payment received: " + amount,
		Data: map[string]string{
			"amount":         amount,
			"customer":       st.Sender.Name,
			"transaction_id": st.Transaction.ID.String(),
			"timestamp":      timestamp,
		},
	})
}

func (s *Service) notifyTransfer(ctx context.Context, st *settlement) {
	amount := FormatMinorUnits(st.Transaction.Amount)
	timestamp := st.Transaction.CreatedAt.Format(time.RFC3339)

	s.notify(ctx, st.Sender, Notification{
		Template: TemplateTransferDebit,
		Subject:  "Transfer of " + amount + " sent",
		Data: map[string]string{
			"amount":         amount,
			"receiver":       st.Receiver.Name,
			"receiver_acct":  st.Receiver.AccountNumber,
			"remarks":        st.Transaction.Remarks,
			"transaction_id": st.Transaction.ID.String(),
			"timestamp":      timestamp,
		},
	})
	s.notify(ctx, st.Receiver, Notification{
		Template: TemplateTransferCredit,
		Subject:  "You received " + amount,
		Data: map[string]string{
			"amount":         amount,
			"sender":         st.Sender.Name,
			"sender_acct":    st.Sender.AccountNumber,
			"remarks":        st.Transaction.Remarks,
			"transaction_id": st.Transaction.ID.String(),
			"timestamp":      timestamp,
		},
	})
}

func (s *Service) notifyDeposit(ctx context.Context, account *domain.Account, txn *domain.Transaction, balance int64) {
	amount := FormatMinorUnits(txn.Amount)
	s.notify(ctx, account, Notification{
		Template: TemplateDepositCredit,
		Subject:  "Deposit of " + amount + " received",
		Data: map[string]string{
			"amount":         amount,
			"balance":        FormatMinorUnits(balance),
			"transaction_id": txn.ID.String(),
			"timestamp":      txn.CreatedAt.Format(time.RFC3339),
		},
	})
}
