package llm

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"cinememory/backend/internal/logger"
)

type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Cooldown         time.Duration
	CallTimeout      time.Duration
}

// BreakerClient bounds every call with a timeout and stops calling the
// provider after repeated failures until the cooldown passes.
type BreakerClient struct {
	next    Client
	cb      *gobreaker.CircuitBreaker[Response]
	timeout time.Duration
}

func NewBreakerClient(next Client, cfg BreakerConfig, log *zap.Logger) *BreakerClient {
	log = logger.OrNop(log)
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("llm circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &BreakerClient{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker[Response](settings),
		timeout: cfg.CallTimeout,
	}
}

func (b *BreakerClient) Complete(ctx context.Context, req Request) (Response, error) {
	return b.cb.Execute(func() (Response, error) {
		callCtx := ctx
		if b.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, b.timeout)
			defer cancel()
		}
		return b.next.Complete(callCtx, req)
	})
}

func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}
