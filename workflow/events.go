package workflow

import (
	"context"
	"sync"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/sirupsen/logrus"
)

// EventPublisher receives an event after every settled mutation.
// config.PubSubPublisher satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, msg config.LedgerEventMessage) (string, error)
}

type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, msg config.LedgerEventMessage) (string, error) {
	return "", nil
}

// RecordingPublisher keeps published events in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []config.LedgerEventMessage
}

func (p *RecordingPublisher) Publish(ctx context.Context, msg config.LedgerEventMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
	return "", nil
}

func (p *RecordingPublisher) Events() []config.LedgerEventMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]config.LedgerEventMessage(nil), p.events...)
}

// entity types and actions carried by ledger events
const (
	EntityAccount     = "Account"
	EntityTransaction = "Transaction"
	EntityTransfer    = "Transfer"
	EntityDpsTransfer = "DpsTransfer"
	EntityPurchase    = "Purchase"
	EntityLendBorrow  = "LendBorrow"

	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// publish never fails the caller; the mutation has already settled.
func (e *Engine) publish(ctx context.Context, userId, entityType, entityId, action string, related ...string) {
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	msg := config.LedgerEventMessage{
		UserId:        userId,
		EntityType:    entityType,
		EntityId:      entityId,
		Action:        action,
		RelatedIds:    related,
		OccurredAt:    e.now(),
		CorrelationId: cid,
	}
	if _, err := e.publisher.Publish(ctx, msg); err != nil {
		e.logger.WithFields(logrus.Fields{
			"field":       "publish",
			"user_id":     userId,
			"entity_type": entityType,
			"entity_id":   entityId,
		}).Warn("ledger event not published: " + err.Error())
	}
}
