package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/infra/config"
)

const (
	defaultKeyPrefix = "auth"
	connectTimeout   = 5 * time.Second
)

// Client is the shared connection used for revoked token ids and rate
// limit windows. Every key it hands out lives under the configured prefix.
type Client struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
}

// NewClient dials Redis and fails unless the server answers a ping.
func NewClient(ctx context.Context, cfg config.RedisSettings, logger *zap.Logger) (*Client, error) {
	opts := &redis.Options{
		Addr:            net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        10,
		MinIdleConns:    2,
		MaxRetries:      2,
		DialTimeout:     connectTimeout,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: cfg.Host}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	prefix := strings.Trim(strings.TrimSpace(cfg.KeyPrefix), ":")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	logger.Info("redis connected",
		zap.String("addr", opts.Addr),
		zap.Int("db", cfg.DB),
		zap.Bool("tls", cfg.TLSEnabled),
		zap.String("key_prefix", prefix),
	)

	return &Client{client: client, logger: logger, prefix: prefix}, nil
}

// Client returns the underlying go-redis client.
func (c *Client) Client() *redis.Client {
	return c.client
}

// Key builds a namespaced key, e.g. Key("rate-limit") -> "auth:rate-limit".
func (c *Client) Key(parts ...string) string {
	return strings.Join(append([]string{c.prefix}, parts...), ":")
}

// HealthCheck reports an unreachable server as a transient failure.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		stats := c.client.PoolStats()
		c.logger.Warn("redis health check failed",
			zap.Error(err),
			zap.Uint32("total_conns", stats.TotalConns),
			zap.Uint32("timeouts", stats.Timeouts),
		)
		return fmt.Errorf("%w: redis: %w", domain.ErrTransient, err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
