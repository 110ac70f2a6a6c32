package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lucasnoah/gatekeeper/internal/policy"
	"github.com/lucasnoah/gatekeeper/internal/stage"
)

const (
	// StreamTransitions receives one entry per applied stage transition.
	StreamTransitions = "gatekeeper_transitions"
	// StreamDecisions receives one entry per policy decision.
	StreamDecisions = "gatekeeper_decisions"
)

// DecisionEvent is a policy decision for an issue at a stage.
type DecisionEvent struct {
	Issue    int
	Stage    string
	TraceID  string
	Decision policy.PolicyDecision
}

// Publisher emits workflow events to downstream consumers.
type Publisher interface {
	PublishTransition(ctx context.Context, t stage.Transition) error
	PublishDecision(ctx context.Context, e DecisionEvent) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishTransition(context.Context, stage.Transition) error { return nil }
func (Nop) PublishDecision(context.Context, DecisionEvent) error      { return nil }
func (Nop) Close() error                                              { return nil }

// RedisPublisher appends events to Redis streams.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher wraps an existing client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// ConnectRedis creates a publisher from a Redis URL.
func ConnectRedis(redisURL string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return NewRedisPublisher(redis.NewClient(opts)), nil
}

// Open returns a Redis publisher for redisURL, or Nop when it is empty.
func Open(redisURL string) (Publisher, error) {
	if redisURL == "" {
		return Nop{}, nil
	}
	return ConnectRedis(redisURL)
}

// PublishTransition adds t to the transitions stream.
func (p *RedisPublisher) PublishTransition(ctx context.Context, t stage.Transition) error {
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamTransitions,
		Values: transitionValues(t),
	}).Err(); err != nil {
		return fmt.Errorf("publish transition: %w", err)
	}
	return nil
}

// PublishDecision adds e to the decisions stream.
func (p *RedisPublisher) PublishDecision(ctx context.Context, e DecisionEvent) error {
	values, err := decisionValues(e)
	if err != nil {
		return err
	}
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamDecisions,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("publish decision: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func transitionValues(t stage.Transition) map[string]any {
	return map[string]any{
		"issue":     t.Issue,
		"from":      string(t.From),
		"to":        string(t.To),
		"reason":    t.Reason,
		"trace_id":  t.TraceID,
		"timestamp": t.At.UTC().Format(time.RFC3339),
	}
}

func decisionValues(e DecisionEvent) (map[string]any, error) {
	payload, err := e.Decision.JSON()
	if err != nil {
		return nil, fmt.Errorf("encode decision: %w", err)
	}
	return map[string]any{
		"issue":     e.Issue,
		"stage":     e.Stage,
		"trace_id":  e.TraceID,
		"decision":  string(e.Decision.Decision),
		"reason":    e.Decision.Reason,
		"timestamp": e.Decision.Timestamp.UTC().Format(time.RFC3339),
		"payload":   payload,
	}, nil
}

// TransitionObserver adapts p to a stage.Observer publishing under ctx.
func TransitionObserver(ctx context.Context, p Publisher) stage.Observer {
	return stage.ObserverFunc(func(t stage.Transition) error {
		return p.PublishTransition(ctx, t)
	})
}
