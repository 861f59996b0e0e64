package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/discedric/netbox-license/internal/clock"
	"github.com/discedric/netbox-license/internal/license/accounting"
	"github.com/discedric/netbox-license/internal/license/domain"
	"github.com/discedric/netbox-license/internal/lock"
	obslogger "github.com/discedric/netbox-license/internal/observability/logger"
	obsmetrics "github.com/discedric/netbox-license/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const sweepLockKey = "expiry_sweep"

// statuses is the gauge label order, most urgent first.
var statuses = []string{
	string(domain.ExpiryDanger),
	string(domain.ExpiryWarning),
	string(domain.ExpiryInfo),
	string(domain.ExpirySuccess),
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Policy  accounting.PolicySource
	Clock   clock.Clock
	GenID   *snowflake.Node
	Locker  lock.Locker               `optional:"true"`
	Metrics *obsmetrics.ExpiryMetrics `optional:"true"`
	Config  Config                    `optional:"true"`
}

// Scheduler periodically classifies licenses that are expired or close to
// expiry and publishes the result as logs and gauges.
type Scheduler struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     Config
	repo    domain.Repository
	policy  accounting.PolicySource
	clock   clock.Clock
	genID   *snowflake.Node
	locker  lock.Locker
	metrics *obsmetrics.ExpiryMetrics
}

// ExpiringLicense is one license found by a sweep.
type ExpiringLicense struct {
	ID         snowflake.ID
	LicenseKey string
	ExpiryDate time.Time
	Status     domain.ExpiryStatus
}

// Report summarizes a sweep.
type Report struct {
	RunID     string
	Today     time.Time
	Horizon   time.Time
	Scanned   int
	Truncated bool
	Counts    map[string]int
	Licenses  []ExpiringLicense
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Repo == nil || p.Policy == nil || p.Clock == nil || p.GenID == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:      p.DB,
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		repo:    p.Repo,
		policy:  p.Policy,
		clock:   p.Clock,
		genID:   p.GenID,
		locker:  p.Locker,
		metrics: p.Metrics,
	}, nil
}

// RunForever sweeps once immediately and then on every tick until ctx ends.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("expiry sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep. A nil report with a nil error means the
// sweep was skipped because another runner holds the sweep lock.
func (s *Scheduler) RunOnce(parent context.Context) (*Report, error) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, sweepLockKey)
		if err != nil {
			if errors.Is(err, lock.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
				s.log.Debug("expiry sweep skipped, lock held elsewhere")
				return nil, nil
			}
			return nil, fmt.Errorf("expiry_sweep: %w", err)
		}
		defer unlock()
	}

	start := time.Now()
	report, err := s.sweep(ctx)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.RecordRun(obsmetrics.ExpirySweepStatusError, elapsed, s.clock.Now())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.log.Warn("expiry sweep timed out", zap.Duration("timeout", s.cfg.RunTimeout), zap.Error(err))
			return nil, nil
		}
		return nil, fmt.Errorf("expiry_sweep: %w", err)
	}

	s.metrics.SetLicenses(statuses, report.Counts)
	s.metrics.RecordRun(obsmetrics.ExpirySweepStatusOK, elapsed, s.clock.Now())
	s.logReport(ctx, report, elapsed)
	return report, nil
}

func (s *Scheduler) sweep(ctx context.Context) (*Report, error) {
	engine := accounting.New(s.policy.Policy())
	today := accounting.DateOnly(s.clock.Now())
	horizon := today.AddDate(0, 0, s.cfg.HorizonDays)

	// One extra row tells a full batch apart from a truncated one.
	rows, err := s.repo.ListExpiringLicenses(ctx, s.db, horizon, s.cfg.BatchSize+1)
	if err != nil {
		return nil, err
	}
	truncated := len(rows) > s.cfg.BatchSize
	if truncated {
		rows = rows[:s.cfg.BatchSize]
	}

	report := &Report{
		RunID:     s.genID.Generate().String(),
		Today:     today,
		Horizon:   horizon,
		Scanned:   len(rows),
		Truncated: truncated,
		Counts:    make(map[string]int, len(statuses)),
		Licenses:  make([]ExpiringLicense, 0, len(rows)),
	}
	for _, row := range rows {
		status := engine.ComputeExpiryStatus(row, today)
		if status == nil {
			continue
		}
		report.Counts[string(status.Status)]++
		report.Licenses = append(report.Licenses, ExpiringLicense{
			ID:         row.ID,
			LicenseKey: row.LicenseKey,
			ExpiryDate: *row.ExpiryDate,
			Status:     *status,
		})
	}
	return report, nil
}

func (s *Scheduler) logReport(ctx context.Context, report *Report, elapsed time.Duration) {
	log := obslogger.WithContext(ctx, s.log).With(zap.String("run_id", report.RunID))
	for _, l := range report.Licenses {
		fields := []zap.Field{
			zap.String("license_id", l.ID.String()),
			zap.String("license_key", l.LicenseKey),
			zap.Time("expiry_date", l.ExpiryDate),
			zap.Int("days_left", l.Status.DaysLeft),
			zap.String("status", string(l.Status.Status)),
		}
		switch l.Status.Status {
		case domain.ExpiryDanger, domain.ExpiryWarning:
			log.Warn("license.expiring", fields...)
		default:
			log.Debug("license.expiring", fields...)
		}
	}

	fields := []zap.Field{
		zap.Time("horizon", report.Horizon),
		zap.Int("scanned", report.Scanned),
		zap.Int("expired", report.Counts[string(domain.ExpiryDanger)]),
		zap.Int("warning", report.Counts[string(domain.ExpiryWarning)]),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if report.Truncated {
		log.Warn("expiry sweep hit batch size, results truncated", append(fields, zap.Int("batch_size", s.cfg.BatchSize))...)
		return
	}
	log.Info("expiry sweep finished", fields...)
}
