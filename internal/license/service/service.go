package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/discedric/netbox-license/internal/clock"
	inventorydomain "github.com/discedric/netbox-license/internal/inventory/domain"
	"github.com/discedric/netbox-license/internal/license/accounting"
	"github.com/discedric/netbox-license/internal/license/domain"
	"github.com/discedric/netbox-license/internal/lock"
	obslogger "github.com/discedric/netbox-license/internal/observability/logger"
	"github.com/discedric/netbox-license/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("github.com/discedric/netbox-license/internal/license/service")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Inventory inventorydomain.Repository
	Policy    accounting.PolicySource
	Clock     clock.Clock
	Locker    lock.Locker
	Metrics   *metrics.Metrics `optional:"true"`
}

// base holds what the three services share.
type base struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	inventory inventorydomain.Repository
	policy    accounting.PolicySource
	clock     clock.Clock
	locker    lock.Locker
	metrics   *metrics.Metrics
}

func newBase(p Params, name string) base {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	locker := p.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return base{
		db:        p.DB,
		log:       p.Log.Named(name),
		genID:     p.GenID,
		repo:      p.Repo,
		inventory: p.Inventory,
		policy:    p.Policy,
		clock:     c,
		locker:    locker,
		metrics:   p.Metrics,
	}
}

func (b *base) engine() accounting.Engine {
	if b.policy == nil {
		return accounting.New(accounting.DefaultPolicy())
	}
	return accounting.New(b.policy.Policy())
}

// logger carries the trace and span ids of ctx.
func (b *base) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, b.log)
}

func (b *base) now() time.Time {
	return b.clock.Now().UTC()
}

// lockLicense takes the admission lock of one license.
func (b *base) lockLicense(ctx context.Context, id snowflake.ID) (lock.Unlock, error) {
	return b.lock(ctx, "license", id)
}

// lockLicenseType serializes classification changes of a type against
// licenses being written under it.
func (b *base) lockLicenseType(ctx context.Context, id snowflake.ID) (lock.Unlock, error) {
	return b.lock(ctx, "license_type", id)
}

func (b *base) lock(ctx context.Context, entity string, id snowflake.ID) (lock.Unlock, error) {
	start := time.Now()
	unlock, err := b.locker.Lock(ctx, entity+":"+id.String())
	b.metrics.RecordLockWait(ctx, lockBackend(b.locker), time.Since(start))
	if err != nil {
		if errors.Is(err, lock.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %s %s", domain.ErrLockUnavailable, entity, id)
		}
		return nil, err
	}
	return unlock, nil
}

func lockBackend(l lock.Locker) string {
	if _, ok := l.(*lock.RedisLocker); ok {
		return "redis"
	}
	return "local"
}

// reject records a failed write. Validation failures are expected traffic and
// log at Info; anything else is an Error.
func (b *base) reject(ctx context.Context, entity string, err error, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if verr, ok := domain.AsValidationError(err); ok {
		b.metrics.RecordValidationFailure(ctx, entity, string(verr.Kind))
		fields = append(fields,
			zap.String("entity", entity),
			zap.String("kind", string(verr.Kind)),
			zap.String("code", verr.Code),
			zap.String("field", verr.Field),
		)
		b.logger(ctx).Info("write rejected", fields...)
		return err
	}
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrProtected),
		errors.Is(err, domain.ErrDuplicateLicenseKey),
		errors.Is(err, domain.ErrDuplicateSlug),
		errors.Is(err, context.Canceled):
		return err
	}
	b.logger(ctx).Error("write failed", append(fields, zap.String("entity", entity), zap.Error(err))...)
	return err
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

// parseOptionalID treats nil and blank as "no reference".
func parseOptionalID(value *string) (*snowflake.ID, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	id, err := parseID(*value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalIDFilter(value string) (*snowflake.ID, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	id, err := parseID(value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

func idString(id *snowflake.ID) *string {
	if id == nil || *id == 0 {
		return nil
	}
	v := id.String()
	return &v
}

func notFound(kind domain.ErrorKind, field, code, what string) error {
	return domain.NewValidationError(kind, field, code, what+" not found")
}
