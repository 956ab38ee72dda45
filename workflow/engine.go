package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/storage"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mmdatafocus/ledger_backend/workflow"

// Engine is the ledger engine: every balance-affecting operation goes
// through it, and every balance write goes through its recompute path.
type Engine struct {
	store     storage.Store
	logger    *logrus.Logger
	publisher EventPublisher
	locker    *PostingLocker
	tracer    trace.Tracer
	now       func() time.Time
	newId     func() string
	newTxnId  func() string
}

type Option func(*Engine)

func WithLogger(logger *logrus.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithLocker(l *PostingLocker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTransactionIdGenerator replaces the correlation id source. Tests use it
// to force collisions.
func WithTransactionIdGenerator(gen func() string) Option {
	return func(e *Engine) { e.newTxnId = gen }
}

func NewEngine(store storage.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		logger:    config.GetLogger(),
		publisher: NopPublisher{},
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		newId:     uuid.NewString,
		newTxnId:  utils.GenerateTransactionId,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Store() storage.Store { return e.store }

func userIdFrom(ctx context.Context) (string, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return "", models.NewValidationError("user_id", "is required")
	}
	return userId, nil
}

// begin opens a span and returns the caller's user id.
func (e *Engine) begin(ctx context.Context, name string) (context.Context, trace.Span, string, error) {
	ctx, span := e.tracer.Start(ctx, name)
	userId, err := userIdFrom(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return ctx, nil, "", err
	}
	return ctx, span, userId, nil
}

func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *Engine) fields(ctx context.Context, funcName, userId string) logrus.Fields {
	f := logrus.Fields{
		"field":   funcName,
		"user_id": userId,
	}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok && cid != "" {
		f["correlation_id"] = cid
	}
	return f
}

// lookupErr converts a store not-found into a ReferenceError.
func lookupErr(entity, id string, err error) error {
	if storage.IsNotFound(err) {
		return &models.ReferenceError{Entity: entity, Id: id}
	}
	return err
}

// compensationErr joins the original failure with a failed undo step. The
// ledger may now be inconsistent, so the finding is logged for reconciliation.
func (e *Engine) compensationErr(ctx context.Context, funcName, userId, entityId string, cause, undo error) error {
	if undo == nil {
		return cause
	}
	violation := &models.InvariantViolation{
		Check:    models.CheckIncompleteStep,
		EntityId: entityId,
		Details:  "compensation failed: " + undo.Error(),
	}
	config.LogError(e.logger, "workflow", funcName, "compensation", e.fields(ctx, funcName, userId), violation)
	return errors.Join(cause, violation)
}
