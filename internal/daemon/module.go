package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/api"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/bus"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/cache"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/config"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/deliver"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/lock"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/logging"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/rest"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/session"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/status"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/store"
	intsync "github.com/yoursandeshshrestha/TreesIndia-sub004/internal/sync"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/ws"
)

// Params holds the resolved invocation passed to the fx module.
type Params struct {
	SessionName string
	// ConversationID, when non-zero, is opened on start.
	ConversationID int64
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideCache,
			provideRESTClient,
			provideMessageStore,
			provideConversationStore,
			provideManager,
			provideSyncEngine,
			provideOrchestrator,
			provideChatService,
			provideMessageService,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideCache(p Params, logger *zap.Logger) (*cache.Cache, error) {
	path := session.CacheDBPath(p.SessionName)
	c, err := cache.Open(path)
	if err != nil {
		return nil, err
	}
	purged, err := c.PurgeExpired()
	if err != nil {
		logger.Warn("cache purge failed", zap.Error(err))
	} else if purged > 0 {
		logger.Info("expired cache entries purged", zap.Int64("count", purged))
	}
	logger.Info("cache initialized", zap.String("path", path))
	return c, nil
}

func provideRESTClient(cfg *config.Config) *rest.Client {
	return rest.NewClient(cfg.APIBaseURL, rest.WithToken(cfg.Token))
}

func provideMessageStore(client *rest.Client) *store.MessageStore {
	return store.NewMessageStore(client)
}

func provideConversationStore(client *rest.Client) *store.ConversationStore {
	return store.NewConversationStore(client)
}

func provideManager(cfg *config.Config, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *ws.Manager {
	return ws.NewManager(cfg.APIBaseURL, b, machine, logger)
}

func provideSyncEngine(messages *store.MessageStore, conversations *store.ConversationStore, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(messages, conversations, b, cfg.UserID, logger)
}

func provideOrchestrator(client *rest.Client, messages *store.MessageStore, conversations *store.ConversationStore, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *deliver.Orchestrator {
	return deliver.NewOrchestrator(client, messages, conversations, b, cfg.UserID, logger)
}

func provideChatService(client *rest.Client, conversations *store.ConversationStore, c *cache.Cache, cfg *config.Config, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(client, conversations, c, cfg.UserID, cfg.PageSize, logger)
}

func provideMessageService(client *rest.Client, messages *store.MessageStore, conversations *store.ConversationStore, conn *ws.Manager, orchestrator *deliver.Orchestrator, cfg *config.Config, logger *zap.Logger) *api.MessageService {
	return api.NewMessageService(client, messages, conversations, conn, orchestrator, cfg.Token, cfg.PageSize, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, engine *intsync.Engine, conn *ws.Manager, messageSvc *api.MessageService, chatSvc *api.ChatService, c *cache.Cache, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.BindSession(conn.ConversationID)
			engine.Start()

			// Warm the conversation list; a cold API is not fatal here.
			go func() {
				if _, _, err := chatSvc.Conversations(context.Background(), 1); err != nil {
					logger.Warn("initial conversation list fetch failed", zap.Error(err))
				}
			}()

			if p.ConversationID != 0 {
				go func() {
					if err := messageSvc.Open(context.Background(), p.ConversationID); err != nil {
						logger.Error("open conversation failed",
							zap.Int64("conversation_id", p.ConversationID),
							zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			conn.Disconnect()
			engine.Stop()
			if err := c.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
