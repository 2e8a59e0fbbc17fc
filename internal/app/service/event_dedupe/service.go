package event_dedupe

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/billsync/pkg/config"
	"github.com/fatflowers/billsync/pkg/logctx"
	"github.com/fatflowers/billsync/pkg/tool"
)

const (
	keyPrefix  = "webhook:event:"
	defaultTTL = 72 * time.Hour
)

// Only delete the key if it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Service claims provider event ids so redelivered events are processed once.
// A nil Redis client disables it: every claim succeeds.
type Service struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
	log    *zap.SugaredLogger
}

func New(client *redis.Client, ttl time.Duration, log *zap.SugaredLogger) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{client: client, script: redis.NewScript(releaseScript), ttl: ttl, log: log}
}

func newFromConfig(client *redis.Client, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return New(client, cfg.Redis.EventTTL, log)
}

func key(eventID string) string { return keyPrefix + eventID }

// Claim marks eventID as in progress. claimed is false when another delivery
// of the same event already holds the key. Redis errors are logged and the
// event is treated as claimed so processing never blocks on Redis.
func (s *Service) Claim(ctx context.Context, eventID string) (token string, claimed bool) {
	if s == nil || s.client == nil || eventID == "" {
		return "", true
	}
	token = tool.NewTraceID()
	ok, err := s.client.SetNX(ctx, key(eventID), token, s.ttl).Result()
	if err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("event_dedupe_claim_failed", "event_id", eventID, "err", err)
		return "", true
	}
	return token, ok
}

// Release drops a claim taken with token, letting a later redelivery run.
func (s *Service) Release(ctx context.Context, eventID, token string) {
	if s == nil || s.client == nil || eventID == "" || token == "" {
		return
	}
	if err := s.script.Run(ctx, s.client, []string{key(eventID)}, token).Err(); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("event_dedupe_release_failed", "event_id", eventID, "err", err)
	}
}

var Module = fx.Options(
	fx.Provide(newFromConfig),
)
