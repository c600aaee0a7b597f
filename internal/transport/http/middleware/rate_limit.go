package middleware

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/infra/logger"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

// AttemptLimiter is the usecase rate limiter as seen by the middleware.
type AttemptLimiter interface {
	Check(ctx context.Context, rule usecase.RateLimitRule, identifier string) (domain.RateLimitWindow, error)
	Now() time.Time
}

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule configures a sliding-window limit for a particular identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// RateLimiter gates routes before their handlers run, so a throttled login
// never reaches password verification.
type RateLimiter struct {
	limiter AttemptLimiter
	logger  *zap.Logger
	metrics *HTTPMetrics
}

type ruleResult struct {
	allowed    bool
	limit      int
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(limiter AttemptLimiter, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		limiter: limiter,
		logger:  logger,
	}
}

// WithMetrics counts rejections per rule.
func (rl *RateLimiter) WithMetrics(metrics *HTTPMetrics) *RateLimiter {
	rl.metrics = metrics
	return rl
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		if ip == "" {
			return "", false
		}
		return ip, true
	}
}

// RateLimit returns a Gin middleware enforcing the provided rules. Store
// failures are logged and the request proceeds.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	filtered := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		filtered = append(filtered, rule)
	}

	return func(c *gin.Context) {
		if len(filtered) == 0 || rl.limiter == nil {
			c.Next()
			return
		}

		var bestResult *ruleResult

		for _, rule := range filtered {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			window, err := rl.limiter.Check(c.Request.Context(), usecase.RateLimitRule{
				Name:   rule.Name,
				Limit:  rule.Limit,
				Window: rule.Window,
			}, identifier)
			if err != nil && !usecase.IsRateLimited(err) {
				rl.logger.Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.String("identifier", logger.MaskRateLimitKey(rule.Name+":"+identifier)),
					zap.Error(err),
				)
				continue
			}

			res := rl.resultFor(rule, window, err)
			if bestResult == nil || rl.shouldReplaceHeaderResult(*bestResult, res) {
				snapshot := res
				bestResult = &snapshot
			}

			if !res.allowed {
				rl.applyHeaders(c, res)
				rl.respondRateLimited(c, rule, identifier)
				return
			}
		}

		if bestResult != nil {
			rl.applyHeaders(c, *bestResult)
		}

		c.Next()
	}
}

func (rl *RateLimiter) resultFor(rule RateLimitRule, window domain.RateLimitWindow, err error) ruleResult {
	now := rl.limiter.Now()
	res := ruleResult{
		allowed:   err == nil && window.Allowed,
		limit:     rule.Limit,
		remaining: window.Remaining(),
		reset:     window.ResetAt,
	}
	if res.reset.IsZero() {
		res.reset = now.Add(rule.Window)
	}

	var exceeded *usecase.RateLimitExceededError
	if errors.As(err, &exceeded) {
		res.retryAfter = exceeded.RetryAfter
	} else {
		res.retryAfter = window.RetryAfter(now)
	}
	return res
}

func (rl *RateLimiter) shouldReplaceHeaderResult(current, candidate ruleResult) bool {
	if !candidate.allowed && current.allowed {
		return true
	}

	if candidate.allowed == current.allowed {
		if candidate.remaining < current.remaining {
			return true
		}
		if candidate.remaining == current.remaining && candidate.reset.Before(current.reset) {
			return true
		}
	}

	return false
}

func (rl *RateLimiter) applyHeaders(c *gin.Context, res ruleResult) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(res.limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(res.remaining, 0)))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(res.reset.Unix(), 10))

	if !res.allowed {
		headers.Set("Retry-After", strconv.Itoa(retrySeconds(res.retryAfter)))
	}
}

func (rl *RateLimiter) respondRateLimited(c *gin.Context, rule RateLimitRule, identifier string) {
	rl.metrics.ObserveRateLimited(rule.Name)
	rl.logger.Info("request rate limited",
		zap.String("rule", rule.Name),
		zap.String("identifier", logger.MaskRateLimitKey(rule.Name+":"+identifier)),
		zap.String("path", c.Request.URL.Path),
	)

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: domain.ErrRateLimited.Error()})
}

// retrySeconds rounds up so clients never retry a moment too early.
func retrySeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
