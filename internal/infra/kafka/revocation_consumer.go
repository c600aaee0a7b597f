package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/config"
)

// RevocationConsumerOptions tunes lag monitoring.
type RevocationConsumerOptions struct {
	MaxEventLag time.Duration
}

// RevocationConsumer hydrates a process-local denylist from token.revoked
// events so that a logout on one instance is honoured by every instance.
type RevocationConsumer struct {
	denylist    port.JTIDenylist
	logger      *zap.Logger
	maxEventLag time.Duration
	now         func() time.Time
}

// NewRevocationConsumer constructs a consumer that keeps the denylist current.
func NewRevocationConsumer(denylist port.JTIDenylist, logger *zap.Logger, opts RevocationConsumerOptions) *RevocationConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevocationConsumer{
		denylist:    denylist,
		logger:      logger,
		maxEventLag: opts.MaxEventLag,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the consumer clock for deterministic testing.
func (c *RevocationConsumer) WithClock(clock func() time.Time) *RevocationConsumer {
	if clock != nil {
		c.now = clock
	}
	return c
}

// HandleMessage decodes an event envelope and applies its payload.
func (c *RevocationConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	var envelope struct {
		EventID   string              `json:"event_id"`
		EventType string              `json:"event_type"`
		Payload   tokenRevokedPayload `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("decode token revoked event: %w", err)
	}
	if envelope.EventType != "" && envelope.EventType != EventTokenRevoked {
		return nil
	}

	return c.HandleEvent(ctx, domain.TokenRevokedEvent{
		EventID:   envelope.EventID,
		JTI:       envelope.Payload.JTI,
		UserID:    envelope.Payload.UserID,
		ExpiresAt: envelope.Payload.ExpiresAt,
		RevokedAt: envelope.Payload.RevokedAt,
		Reason:    envelope.Payload.Reason,
	})
}

// HandleEvent records the revocation locally. Events for tokens that have
// already expired are skipped.
func (c *RevocationConsumer) HandleEvent(ctx context.Context, event domain.TokenRevokedEvent) error {
	if c.denylist == nil || event.JTI == "" {
		return nil
	}

	now := c.now()
	if !event.ExpiresAt.IsZero() && !event.ExpiresAt.After(now) {
		c.logger.Debug("skip expired revocation", zap.String("jti", event.JTI))
		return nil
	}

	if !event.RevokedAt.IsZero() && c.maxEventLag > 0 {
		if lag := now.Sub(event.RevokedAt); lag > c.maxEventLag {
			c.logger.Warn("token revocation event lag exceeds threshold",
				zap.Duration("lag", lag),
				zap.Duration("threshold", c.maxEventLag),
				zap.String("jti", event.JTI),
			)
		}
	}

	revokedAt := event.RevokedAt.UTC()
	if revokedAt.IsZero() {
		revokedAt = now
	}

	if err := c.denylist.AddRevocation(ctx, domain.TokenRevocation{
		JTI:       event.JTI,
		UserID:    event.UserID,
		ExpiresAt: event.ExpiresAt.UTC(),
		RevokedAt: revokedAt,
		Reason:    event.Reason,
	}); err != nil {
		return fmt.Errorf("cache revocation: %w", err)
	}
	return nil
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *RevocationConsumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *RevocationConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim applies every message in the claim and marks it. Malformed
// messages are logged and skipped so one bad record cannot stall the group.
func (c *RevocationConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.HandleMessage(session.Context(), msg); err != nil {
				c.logger.Warn("Failed to apply token revocation",
					zap.String("topic", msg.Topic),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// RevocationListener runs a consumer group over the token.revoked topic.
type RevocationListener struct {
	group   sarama.ConsumerGroup
	topic   string
	handler sarama.ConsumerGroupHandler
	logger  *zap.Logger
}

// NewRevocationListener joins the configured consumer group. Each instance
// should use its own group so that every instance sees every revocation.
func NewRevocationListener(cfg config.KafkaSettings, groupID string, handler sarama.ConsumerGroupHandler, logger *zap.Logger) (*RevocationListener, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	group, err := sarama.NewConsumerGroup(cfg.Brokers, groupID, newSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	return &RevocationListener{
		group:   group,
		topic:   topicName(cfg.TopicPrefix, EventTokenRevoked),
		handler: handler,
		logger:  logger,
	}, nil
}

// Run consumes until ctx is cancelled. Rebalances re-enter Consume.
func (l *RevocationListener) Run(ctx context.Context) error {
	go func() {
		for err := range l.group.Errors() {
			l.logger.Warn("Kafka consumer group error", zap.Error(err))
		}
	}()

	l.logger.Info("Token revocation listener started", zap.String("topic", l.topic))
	for {
		if err := l.group.Consume(ctx, []string{l.topic}, l.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			l.logger.Warn("Kafka consume failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group.
func (l *RevocationListener) Close() error {
	if err := l.group.Close(); err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	return nil
}
