package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/ledger_backend/utils"
	"google.golang.org/api/option"
)

// LedgerEventMessage is the envelope published after every settled ledger mutation.
type LedgerEventMessage struct {
	UserId        string    `json:"user_id"`
	EntityType    string    `json:"entity_type"`
	EntityId      string    `json:"entity_id"`
	Action        string    `json:"action"`
	RelatedIds    []string  `json:"related_ids,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationId string    `json:"correlation_id"`
}

// PubSubPublisher publishes ledger events to one topic. The client is
// created lazily on first publish.
type PubSubPublisher struct {
	projectId string
	topic     string
	credJSON  string

	mu     sync.Mutex
	client *pubsub.Client
}

func NewPubSubPublisher(s Settings) (*PubSubPublisher, error) {
	if s.PubSubProjectId == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}
	if s.PubSubTopic == "" {
		return nil, errors.New("PUBSUB_TOPIC is required")
	}
	return &PubSubPublisher{
		projectId: s.PubSubProjectId,
		topic:     s.PubSubTopic,
		credJSON:  s.PubSubCredentialsJSON,
	}, nil
}

func (p *PubSubPublisher) getClient(ctx context.Context) (*pubsub.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	var attempt int
	for {
		attempt++
		var (
			c   *pubsub.Client
			err error
		)
		if p.credJSON != "" {
			c, err = pubsub.NewClient(ctx, p.projectId, option.WithCredentialsJSON([]byte(p.credJSON)))
		} else {
			// Application Default Credentials
			c, err = pubsub.NewClient(ctx, p.projectId)
		}
		if err == nil {
			p.client = c
			log.Printf("pubsub client ready (project_id=%s attempt=%d)", p.projectId, attempt)
			return c, nil
		}
		if attempt >= 3 {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		sleep := utils.Backoff(attempt)
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", p.projectId, attempt, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// Publish sends msg and waits for the server-assigned id.
func (p *PubSubPublisher) Publish(ctx context.Context, msg LedgerEventMessage) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	result := client.Topic(p.topic).Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"entity_type": msg.EntityType,
			"action":      msg.Action,
		},
	})
	return result.Get(ctx)
}

func (p *PubSubPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}
