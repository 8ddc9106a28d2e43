package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

const (
	leaseKey     = "sla:scan:lease"
	atRiskPrefix = "sla:at-risk:"
)

var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Scanner is the detection side the worker drives.
type Scanner interface {
	ScanAll(ctx context.Context) ([]service.ScanReport, error)
	AnnounceAtRisk(ctx context.Context, ticket domain.Ticket)
	Unassigned(ctx context.Context, tenantID string) ([]domain.Ticket, error)
}

// Escalator raises tickets that missed their SLA.
type Escalator interface {
	Escalate(ctx context.Context, ticketID string, actor service.Actor, trigger events.EscalationTrigger) (*domain.Ticket, error)
}

// Assigner hands unassigned tickets to the least busy agent.
type Assigner interface {
	AutoAssign(ctx context.Context, ticketID string, actor service.Actor) (*domain.Ticket, error)
}

// SlaWorker runs the SLA sweep on an interval and applies the configured follow-ups.
// With Redis configured only the replica holding the lease sweeps, and at-risk notices
// go out once per ticket per risk window.
type SlaWorker struct {
	cfg        config.SLAConfig
	scanner    Scanner
	escalator  Escalator
	assigner   Assigner
	redis      redis.Cmdable
	instanceID string
	logger     *zap.Logger
}

// NewSlaWorker builds the worker. client may be nil.
func NewSlaWorker(cfg config.SLAConfig, scanner Scanner, escalator Escalator, assigner Assigner, client redis.Cmdable, logger *zap.Logger) *SlaWorker {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Minute
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	if cfg.RiskWindow <= 0 {
		cfg.RiskWindow = 2 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlaWorker{
		cfg:        cfg,
		scanner:    scanner,
		escalator:  escalator,
		assigner:   assigner,
		redis:      client,
		instanceID: uuid.NewString(),
		logger:     logger.With(zap.String("component", "sla_worker")),
	}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (w *SlaWorker) Run(ctx context.Context) error {
	w.logger.Info("sla worker started",
		zap.Duration("interval", w.cfg.ScanInterval),
		zap.Bool("auto_escalate", w.cfg.AutoEscalate),
		zap.Bool("auto_assign", w.cfg.AutoAssign))

	ticker := time.NewTicker(w.cfg.ScanInterval)
	defer ticker.Stop()

	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error("initial sla sweep failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sla worker stopped")
			return nil
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("sla sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single sweep when this instance wins the lease.
func (w *SlaWorker) RunOnce(ctx context.Context) error {
	acquired, err := w.acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		w.logger.Debug("sla sweep skipped; lease held elsewhere")
		return nil
	}
	defer w.release(ctx)

	reports, err := w.scanner.ScanAll(ctx)
	for _, report := range reports {
		w.followUp(ctx, report)
	}
	return err
}

func (w *SlaWorker) followUp(ctx context.Context, report service.ScanReport) {
	for _, ticket := range report.AtRisk {
		if w.firstNotice(ctx, ticket.ID) {
			w.scanner.AnnounceAtRisk(ctx, ticket)
		}
	}

	if w.cfg.AutoEscalate {
		for _, ticket := range report.Violated {
			if ticket.EscalationLevel > 0 {
				continue
			}
			err := service.WithRetry(ctx, service.DefaultRetryConfig(), func() error {
				_, err := w.escalator.Escalate(ctx, ticket.ID, service.SystemActor(), events.TriggerSlaBreach)
				return err
			})
			w.logOutcome("auto-escalation", ticket.ID, err)
		}
	}

	if w.cfg.AutoAssign {
		unassigned, err := w.scanner.Unassigned(ctx, report.TenantID)
		if err != nil {
			w.logger.Warn("list unassigned tickets failed", zap.String("tenant_id", report.TenantID), zap.Error(err))
			return
		}
		for _, ticket := range unassigned {
			if ticket.DepartmentID == nil {
				continue
			}
			err := service.WithRetry(ctx, service.DefaultRetryConfig(), func() error {
				_, err := w.assigner.AutoAssign(ctx, ticket.ID, service.SystemActor())
				return err
			})
			w.logOutcome("auto-assignment", ticket.ID, err)
		}
	}
}

func (w *SlaWorker) logOutcome(action, ticketID string, err error) {
	switch {
	case err == nil:
		w.logger.Info(action+" applied", zap.String("ticket_id", ticketID))
	case apperrors.HasCode(err, apperrors.CodeInvalidTransition),
		apperrors.HasCode(err, apperrors.CodeNoAvailableAgent):
		w.logger.Debug(action+" skipped", zap.String("ticket_id", ticketID), zap.Error(err))
	default:
		w.logger.Warn(action+" failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (w *SlaWorker) acquire(ctx context.Context) (bool, error) {
	if w.redis == nil {
		return true, nil
	}
	return w.redis.SetNX(ctx, leaseKey, w.instanceID, w.cfg.LeaseTTL).Result()
}

func (w *SlaWorker) release(ctx context.Context) {
	if w.redis == nil {
		return
	}
	if err := releaseLease.Run(ctx, w.redis, []string{leaseKey}, w.instanceID).Err(); err != nil {
		w.logger.Warn("release sla lease failed", zap.Error(err))
	}
}

// firstNotice reports whether no at-risk notice went out for the ticket within the risk
// window. Without Redis every sweep notifies.
func (w *SlaWorker) firstNotice(ctx context.Context, ticketID string) bool {
	if w.redis == nil {
		return true
	}
	fresh, err := w.redis.SetNX(ctx, atRiskPrefix+ticketID, "1", w.cfg.RiskWindow).Result()
	if err != nil {
		w.logger.Warn("at-risk de-duplication failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return true
	}
	return fresh
}
