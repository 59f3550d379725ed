package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"example.com/timely/internal/observability"
)

// Option configures the project and activity services.
type Option func(*core)

// WithLogger sets the logger used for operation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *core) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *core) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator overrides uuid generation for entity ids.
func WithIDGenerator(newID func() string) Option {
	return func(c *core) {
		if newID != nil {
			c.newID = newID
		}
	}
}

// WithOwnerCache installs a project owner cache.
func WithOwnerCache(cache OwnerCache) Option {
	return func(c *core) {
		if cache != nil {
			c.owners = cache
		}
	}
}

// WithVerificationPolicy selects who may verify activities.
func WithVerificationPolicy(policy VerificationPolicy) Option {
	return func(c *core) {
		if policy != "" {
			c.policy = policy
		}
	}
}

// WithTracer overrides the tracer used for operation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *core) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// core holds the dependencies shared by both services.
type core struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
	owners OwnerCache
	policy VerificationPolicy
	tracer trace.Tracer
}

func newCore(store Store, opts []Option) core {
	c := core{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
		owners: noopOwnerCache{},
		policy: VerifyByOwner,
		tracer: observability.Tracer(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// clock returns the current time at the precision Postgres stores.
func (c core) clock() time.Time {
	return c.now().UTC().Truncate(time.Microsecond)
}

// observe wraps one service operation with a span, an outcome counter and
// failure logging. Storage causes are logged here and replaced by ErrStorage.
func (c core) observe(ctx context.Context, op, callerID string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, op, trace.WithAttributes(append(attrs, attribute.String("caller.id", callerID))...))
	defer span.End()

	err := fn(ctx)
	outcome := outcomeOf(err)
	observability.RecordOperation(op, outcome)
	if err == nil {
		return nil
	}

	logAttrs := []any{slog.String("op", op), slog.String("caller", callerID), slog.String("outcome", outcome)}
	for _, kv := range attrs {
		logAttrs = append(logAttrs, slog.String(string(kv.Key), kv.Value.Emit()))
	}

	var se *storageError
	if errors.As(err, &se) {
		span.RecordError(se.cause)
		span.SetStatus(codes.Error, "storage failure")
		c.logger.ErrorContext(ctx, "operation failed", append(logAttrs, slog.String("error", se.Error()))...)
		return ErrStorage
	}

	span.SetAttributes(attribute.String("outcome", outcome))
	c.logger.DebugContext(ctx, "operation rejected", append(logAttrs, slog.String("error", err.Error()))...)
	return err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, ErrValidation):
		return observability.OutcomeValidation
	case errors.Is(err, ErrNotFound):
		return observability.OutcomeNotFound
	case errors.Is(err, ErrForbidden):
		return observability.OutcomeForbidden
	case errors.Is(err, ErrConflict):
		return observability.OutcomeConflict
	default:
		return observability.OutcomeError
	}
}

// projectOwner resolves the owner of projectID through the cache, falling back to q.
func (c core) projectOwner(ctx context.Context, q Queries, projectID string) (string, error) {
	if owner, ok, err := c.owners.Get(ctx, projectID); err == nil && ok {
		return owner, nil
	} else if err != nil {
		c.logger.WarnContext(ctx, "owner cache read failed", slog.String("project_id", projectID), slog.String("error", err.Error()))
	}

	project, err := q.GetProject(ctx, projectID)
	if err != nil {
		return "", storeErr("get project", err)
	}
	if project == nil {
		return "", ErrProjectNotFound
	}
	if err := c.owners.Set(ctx, projectID, project.CreatedByID); err != nil {
		c.logger.WarnContext(ctx, "owner cache write failed", slog.String("project_id", projectID), slog.String("error", err.Error()))
	}
	return project.CreatedByID, nil
}
