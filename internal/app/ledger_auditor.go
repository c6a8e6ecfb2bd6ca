/**
 * @description
 * Cron-driven audit of the ledger. Each run validates the full chain and publishes a
 * ledger.tamper.detected event when any block fails its hash, link or Merkle check.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/transfa/facepay-service/internal/domain"
	"github.com/transfa/facepay-service/internal/ledger"
)

// ChainValidator is satisfied by Service.
type ChainValidator interface {
	ValidateLedger(ctx context.Context) (ledger.ValidationReport, error)
}

// EventPublisher is the subset of rabbitmq.Publisher the auditor needs.
type EventPublisher interface {
	PublishEvent(ctx context.Context, routingKey string, body interface{}) error
}

// LedgerAuditor runs ValidateLedger on a schedule.
type LedgerAuditor struct {
	cron      *cron.Cron
	validator ChainValidator
	events    EventPublisher
	logger    *slog.Logger
	schedule  string
	timeout   time.Duration
}

// NewLedgerAuditor creates an auditor; call Start to register the job.
func NewLedgerAuditor(validator ChainValidator, events EventPublisher, logger *slog.Logger, schedule string) *LedgerAuditor {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &LedgerAuditor{
		cron:      c,
		validator: validator,
		events:    events,
		logger:    logger,
		schedule:  schedule,
		timeout:   2 * time.Minute,
	}
}

// Start registers the audit job and starts the scheduler.
func (a *LedgerAuditor) Start() error {
	if _, err := a.cron.AddFunc(a.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		_, _ = a.RunOnce(ctx)
	}); err != nil {
		a.logger.Error("failed to schedule ledger audit job", "error", err, "schedule", a.schedule)
		return err
	}
	a.logger.Info("scheduled ledger audit job", "schedule", a.schedule)
	a.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (a *LedgerAuditor) Stop() context.Context {
	return a.cron.Stop()
}

// RunOnce validates the chain and publishes an alert when it is invalid.
func (a *LedgerAuditor) RunOnce(ctx context.Context) (ledger.ValidationReport, error) {
	report, err := a.validator.ValidateLedger(ctx)
	if err != nil {
		a.logger.Error("ledger audit failed", "error", err)
		return report, err
	}
	if report.Valid {
		a.logger.Info("ledger audit passed", "blocks_checked", report.BlocksChecked)
		return report, nil
	}

	var invalid []int64
	for _, res := range report.Results {
		if !res.Valid {
			invalid = append(invalid, res.Index)
		}
	}
	a.logger.Error("ledger tampering detected", "blocks_checked", report.BlocksChecked, "invalid_blocks", invalid)

	event := domain.LedgerTamperEvent{
		EventID:       uuid.NewString(),
		EventType:     domain.EventLedgerTamperDetected,
		BlocksChecked: report.BlocksChecked,
		InvalidBlocks: invalid,
		OccurredAt:    time.Now().UTC(),
	}
	if err := a.events.PublishEvent(ctx, domain.EventLedgerTamperDetected, event); err != nil {
		a.logger.Warn("failed to publish tamper alert", "error", err)
	}
	return report, nil
}
