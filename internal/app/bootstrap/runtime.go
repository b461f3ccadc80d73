// Package bootstrap assembles the process-wide collaborators: redis,
// backend client, stores, realtime channel. Everything is constructed
// and injected; nothing lives as ambient package state.
package bootstrap

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/praxishq/dashboard-core/internal/appointment"
	"github.com/praxishq/dashboard-core/internal/backend"
	"github.com/praxishq/dashboard-core/internal/chat"
	appconfig "github.com/praxishq/dashboard-core/internal/config"
	"github.com/praxishq/dashboard-core/internal/observability/metrics"
	"github.com/praxishq/dashboard-core/internal/realtime"
	"github.com/praxishq/dashboard-core/internal/schedule"
	"github.com/praxishq/dashboard-core/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, archive disabled", "error", err)
		return nil
	}
	return client
}

// BuildArchive returns the Redis-backed message archive; nil redis yields
// a nil-safe no-op archive.
func BuildArchive(redisClient *redis.Client, cfg *appconfig.Config) *chat.Archive {
	ttl := 30 * 24 * time.Hour
	maxMessages := int64(250)
	if cfg != nil {
		if cfg.ArchiveTTL > 0 {
			ttl = cfg.ArchiveTTL
		}
		if cfg.ArchiveMaxMessages > 0 {
			maxMessages = int64(cfg.ArchiveMaxMessages)
		}
	}
	return chat.NewArchive(redisClient, ttl, maxMessages)
}

// BuildBackendClient constructs the REST client for the authoritative
// backend.
func BuildBackendClient(cfg *appconfig.Config, logger *logging.Logger) (*backend.Client, error) {
	return backend.New(backend.Config{
		BaseURL:    cfg.BackendBaseURL,
		Token:      cfg.BackendToken,
		Timeout:    cfg.CommandTimeout,
		MaxRetries: cfg.FetchRetryAttempts,
		Backoff:    cfg.FetchRetryBaseDelay,
		Logger:     logger,
	})
}

// Stores bundles the three aggregate stores so consumers receive them
// as one wired unit.
type Stores struct {
	Schedules    *schedule.Store
	Appointments *appointment.Store
	Chats        *chat.Store
}

// BuildStores wires the stores to the backend client.
func BuildStores(client *backend.Client, cfg *appconfig.Config, logger *logging.Logger) *Stores {
	schedules := schedule.NewStore(client, cfg.CommandTimeout, cfg.FetchRetryAttempts, cfg.FetchRetryBaseDelay, logger)
	return &Stores{
		Schedules:    schedules,
		Appointments: appointment.NewStore(client, schedules, cfg.CommandTimeout, cfg.FetchRetryAttempts, cfg.FetchRetryBaseDelay, logger),
		Chats:        chat.NewStore(client, cfg.FetchRetryAttempts, cfg.FetchRetryBaseDelay, logger),
	}
}

// BuildConnectionManager constructs the realtime channel owner. The
// bearer credential rides the handshake request.
func BuildConnectionManager(cfg *appconfig.Config, m *metrics.SyncMetrics, logger *logging.Logger) *realtime.Manager {
	header := http.Header{}
	if cfg.BackendToken != "" {
		header.Set("Authorization", "Bearer "+cfg.BackendToken)
	}
	return realtime.NewManager(realtime.ManagerConfig{
		URL:       cfg.SocketURL,
		Header:    header,
		BaseDelay: cfg.ReconnectBaseDelay,
		MaxDelay:  cfg.ReconnectMaxDelay,
		Logger:    logger,
		Metrics:   m,
	})
}
