package outbox

import (
	"context"
	"time"

	"github.com/angelmondragon/ledgerpay-backend/pkg/config"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
	"github.com/angelmondragon/ledgerpay-backend/pkg/messaging"
	"github.com/angelmondragon/ledgerpay-backend/pkg/metrics"
)

// Publisher drains pending outbox rows to the broker. Failed rows keep
// their pending status and are retried on every poll until they go
// through; operators watch the pending gauge and oldest-age metric for
// rows that never clear.
type Publisher struct {
	repo *Repository
	pub  messaging.EnvelopePublisher
	logg *logger.Logger
	met  *metrics.OutboxMetrics
	cfg  config.OutboxConfig
}

func NewPublisher(
	repo *Repository,
	pub messaging.EnvelopePublisher,
	logg *logger.Logger,
	met *metrics.OutboxMetrics,
	cfg config.OutboxConfig,
) *Publisher {
	return &Publisher{repo: repo, pub: pub, logg: logg, met: met, cfg: cfg}
}

// Run polls until the context is canceled.
func (p *Publisher) Run(ctx context.Context) error {
	interval := p.cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logg.Info(ctx, "outbox publisher started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.PublishBatch(ctx); err != nil {
				p.logg.Error(ctx, "outbox batch failed", err)
			}
		}
	}
}

// PublishBatch drains one batch of pending rows and refreshes the gauges.
func (p *Publisher) PublishBatch(ctx context.Context) error {
	started := time.Now()
	rows, err := p.repo.FetchUnpublished(p.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, row := range rows {
		env := messaging.EventEnvelope{
			EventID:       row.EventID,
			EventType:     row.EventType,
			CorrelationID: row.CorrelationID,
			Source:        row.Source,
			OccurredAt:    row.OccurredAt,
			Payload:       row.Payload,
		}
		rowCtx := p.logg.WithEventID(ctx, row.EventID.String())

		if err := p.pub.PublishEnvelope(ctx, env); err != nil {
			p.met.IncFailure(row.EventType)
			p.logg.Warn(p.logg.WithField(rowCtx, "error", err.Error()), "outbox publish failed")
			if markErr := p.repo.MarkFailed(row.ID, err); markErr != nil {
				p.logg.Error(rowCtx, "recording outbox failure", markErr)
			}
			continue
		}

		if err := p.repo.MarkPublished(row.ID); err != nil {
			// The event went out but the stamp failed; the row will be
			// republished and consumers dedup by event id.
			p.logg.Error(rowCtx, "stamping outbox row", err)
			continue
		}
		p.met.IncPublished(row.EventType)
	}

	p.refreshGauges(ctx)
	p.met.ObserveBatch(time.Since(started))
	return nil
}

func (p *Publisher) refreshGauges(ctx context.Context) {
	if pending, err := p.repo.CountPending(); err == nil {
		p.met.SetPending(pending)
	} else {
		p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "counting pending outbox rows")
	}
	if age, err := p.repo.OldestPendingAge(); err == nil {
		p.met.SetOldestPendingAge(age)
	} else {
		p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "reading oldest pending age")
	}
}
