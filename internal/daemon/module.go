// Package daemon composes the sync engine into a runnable process.
package daemon

import (
	"context"
	"os"
	"time"

	"github.com/yarsha/chatsync/internal/api"
	"github.com/yarsha/chatsync/internal/bus"
	"github.com/yarsha/chatsync/internal/chatlist"
	"github.com/yarsha/chatsync/internal/config"
	"github.com/yarsha/chatsync/internal/lock"
	"github.com/yarsha/chatsync/internal/logging"
	"github.com/yarsha/chatsync/internal/msgstream"
	"github.com/yarsha/chatsync/internal/outbox"
	"github.com/yarsha/chatsync/internal/reconnect"
	"github.com/yarsha/chatsync/internal/session"
	"github.com/yarsha/chatsync/internal/status"
	"github.com/yarsha/chatsync/internal/store"
	"github.com/yarsha/chatsync/internal/stream"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
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
			provideStore,
			provideClient,
			provideSupervisor,
			provideChatListSyncer,
			provideIngestor,
			provideManager,
			provideBackfiller,
			provideSender,
			provideService,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	path := session.ConfigPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config.Default(), nil
		}
		return nil, err
	}
	return config.Load(path)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine("chatlist", b)
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

func provideStore(p Params, b *bus.Bus, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.StorePath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	db.UseLogger(logger)
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	db.OnRevision(func(rev int64) {
		b.Publish(bus.Event{Kind: bus.KindStoreRevision, Timestamp: time.Now(), Payload: rev})
	})
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideClient(p Params, cfg *config.Config, logger *zap.Logger) (stream.Client, error) {
	tokens := &stream.FileTokenSource{Path: session.TokenPath(p.SessionName)}
	return stream.Dial(cfg.ServerAddr, cfg.Insecure, tokens, logger)
}

func provideSupervisor(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *reconnect.Supervisor {
	initial, max := cfg.BackoffBounds()
	return reconnect.New(b, logger, initial, max)
}

func provideChatListSyncer(db *store.DB, client stream.Client, b *bus.Bus, m *status.Machine, logger *zap.Logger) *chatlist.Syncer {
	return chatlist.New(db, client, b, m, logger)
}

func provideIngestor(db *store.DB, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *msgstream.Ingestor {
	return msgstream.NewIngestor(db, b, cfg.ReactionPolicy, logger)
}

func provideManager(client stream.Client, ingest *msgstream.Ingestor, sup *reconnect.Supervisor, logger *zap.Logger) *msgstream.Manager {
	return msgstream.NewManager(client, ingest, sup, logger)
}

func provideBackfiller(db *store.DB, client stream.Client, ingest *msgstream.Ingestor, logger *zap.Logger) *msgstream.Backfiller {
	return msgstream.NewBackfiller(db, client, ingest, logger)
}

func provideSender(db *store.DB, client stream.Client, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *outbox.Sender {
	return outbox.New(db, client, b, cfg.AccountID, logger)
}

func provideService(db *store.DB, b *bus.Bus, client stream.Client, sender *outbox.Sender,
	manager *msgstream.Manager, backfill *msgstream.Backfiller, logger *zap.Logger) *api.Service {
	return api.New(db, b, client, sender, manager, backfill, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, syncer *chatlist.Syncer, sup *reconnect.Supervisor,
	sender *outbox.Sender, manager *msgstream.Manager, machine *status.Machine, svc *api.Service,
	b *bus.Bus, logger *zap.Logger) {

	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := sup.Run(runCtx, "chatlist", syncer.Run); err != nil && runCtx.Err() == nil {
					logger.Error("chat list supervision ended", zap.Error(err))
				}
			}()
			go func() { _ = sender.Run(runCtx) }()

			// Drain the outbox every time the chat list stream comes back up:
			// messages queued while offline go out on reconnect.
			go func() {
				states, unsub := b.Subscribe(bus.KindChatListState, 16)
				defer unsub()
				for {
					select {
					case evt := <-states:
						if sc, ok := evt.Payload.(status.StateChange); ok && sc.To == status.Streaming {
							sender.Wake()
						}
					case <-runCtx.Done():
						return
					}
				}
			}()

			// A rejected token anywhere tears the whole engine down to Stopped.
			go func() {
				events, unsub := b.Subscribe(bus.KindSessionInvalidated, 4)
				defer unsub()
				select {
				case <-events:
					logger.Warn("session invalidated, stopping sync")
					_ = machine.Transition(status.Stopped)
					cancel()
					manager.Close()
				case <-runCtx.Done():
				}
			}()

			logger.Info("daemon started", zap.Int64("revision", svc.Revision()))
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			manager.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
