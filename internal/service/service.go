package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fnsdeividy/base-arch-sub000/internal/cache"
	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/lock"
	"github.com/fnsdeividy/base-arch-sub000/internal/metrics"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
	"github.com/fnsdeividy/base-arch-sub000/internal/units"
	"github.com/fnsdeividy/base-arch-sub000/internal/xid"
)

var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Cache    cache.ProductCostCache
	CacheTTL time.Duration
	Locker   lock.Locker
	Metrics  *metrics.Recorder
	Logger   *logrus.Logger
	Units    *units.Table
	// Defaults apply until settings are saved through UpdateSettings.
	Defaults domain.ProductionSettings
	Now      func() time.Time
}

type Service struct {
	repo     store.Repository
	conv     *units.Converter
	cache    cache.ProductCostCache
	cacheTTL time.Duration
	locker   lock.Locker
	metrics  *metrics.Recorder
	log      *logrus.Entry
	defaults domain.ProductionSettings
	now      func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NoopProductCostCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Locker == nil {
		opts.Locker = lock.NoopLocker{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if !opts.Defaults.CostingMethod.Valid() {
		opts.Defaults.CostingMethod = domain.CostingFIFO
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:     repo,
		conv:     units.NewConverter(opts.Units),
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		locker:   opts.Locker,
		metrics:  opts.Metrics,
		log:      opts.Logger.WithField("module", "service"),
		defaults: opts.Defaults,
		now:      opts.Now,
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return nil
}

// factorLookup serves custom conversion factors from whatever querier is
// in scope, so conversions inside a transaction see its writes.
type factorLookup struct {
	q store.Querier
}

func (f factorLookup) LookupFactor(ctx context.Context, materialID string, from, to domain.Unit) (decimal.Decimal, bool, error) {
	conv, err := f.q.FindUnitConversion(ctx, materialID, from, to)
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return conv.Factor, true, nil
}

func (s *Service) converter(q store.Querier) *units.Converter {
	return s.conv.WithSource(factorLookup{q: q})
}

func subjectOf(material domain.Material) units.Subject {
	return units.Subject{MaterialID: material.ID, Density: material.Density}
}

func parseUnit(raw string) (domain.Unit, error) {
	return units.Parse(raw)
}

// parseUnitOr falls back to def when raw is blank.
func parseUnitOr(raw string, def domain.Unit) (domain.Unit, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return units.Parse(raw)
}

// withOrderLock serializes transitions of one order across instances.
func (s *Service) withOrderLock(ctx context.Context, orderID string, fn func() error) error {
	release, err := s.locker.Obtain(ctx, "order:"+orderID, 30*time.Second)
	if errors.Is(err, lock.ErrNotObtained) {
		return fmt.Errorf("%w: order %s is being processed", store.ErrConflict, orderID)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.WithFields(logrus.Fields{"action": "lock_release", "entity_id": orderID}).Warn(err.Error())
		}
	}()
	return fn()
}

// logAudit writes outside any transaction. Failures are logged, never returned.
func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.log.WithFields(logrus.Fields{
			"action":    action,
			"entity_id": entityType + "/" + entityID,
		}).Warnf("failed to write audit log: %v", err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", store.ErrInvalidInput)
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func trimOptional(val *string) *string {
	if val == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*val)
	return &trimmed
}

func (s *Service) getMaterialName(ctx context.Context, q store.Querier, names map[string]string, materialID string) string {
	if name, ok := names[materialID]; ok {
		return name
	}
	material, err := q.GetMaterial(ctx, materialID)
	if err != nil {
		names[materialID] = materialID
		return materialID
	}
	names[materialID] = material.Name
	return material.Name
}
