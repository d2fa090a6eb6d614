// Package msgstream maintains live message subscriptions, ingests their
// events, and backfills history around the locally known window.
package msgstream

import (
	"context"
	"sync"

	"github.com/yarsha/chatsync/internal/reconnect"
	"github.com/yarsha/chatsync/internal/stream"
	"go.uber.org/zap"
)

// Manager owns one live subscription per open chat. Subscriptions are
// supervised: a broken stream is redialed with backoff for as long as the
// chat stays subscribed, and not a moment longer.
type Manager struct {
	client stream.Client
	ingest *Ingestor
	sup    *reconnect.Supervisor
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[string]*chatSub
}

type chatSub struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a subscription manager.
func NewManager(client stream.Client, ingest *Ingestor, sup *reconnect.Supervisor, logger *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		client: client,
		ingest: ingest,
		sup:    sup,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*chatSub),
	}
}

// Subscribe opens the live stream for a chat. Subscribing twice is a no-op;
// there is never more than one stream per chat.
func (m *Manager) Subscribe(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, open := m.subs[chatID]; open {
		m.logger.Debug("already subscribed", zap.String("chat_id", chatID))
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	sub := &chatSub{cancel: cancel, done: make(chan struct{})}
	m.subs[chatID] = sub

	go func() {
		defer close(sub.done)
		err := m.sup.Run(ctx, "chat:"+chatID, func(ctx context.Context) error {
			return m.consume(ctx, chatID)
		})
		if err != nil && ctx.Err() == nil {
			m.logger.Warn("chat subscription ended",
				zap.String("chat_id", chatID), zap.Error(err))
		}
		m.mu.Lock()
		if m.subs[chatID] == sub {
			delete(m.subs, chatID)
		}
		m.mu.Unlock()
	}()
}

// consume holds one stream open and ingests until it breaks.
func (m *Manager) consume(ctx context.Context, chatID string) error {
	ms, err := m.client.SubscribeChat(ctx, chatID)
	if err != nil {
		return err
	}
	defer func() { _ = ms.Close() }()
	m.logger.Debug("chat stream open", zap.String("chat_id", chatID))

	for {
		evt, err := ms.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := m.ingest.ApplyEvent(evt); err != nil {
			m.logger.Error("event ingest failed",
				zap.String("chat_id", chatID), zap.Error(err))
		}
	}
}

// Subscribed reports whether a chat currently has a live subscription.
func (m *Manager) Subscribed(chatID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, open := m.subs[chatID]
	return open
}

// Unsubscribe tears down a chat's stream and waits for its goroutine.
func (m *Manager) Unsubscribe(chatID string) {
	m.mu.Lock()
	sub, open := m.subs[chatID]
	if open {
		delete(m.subs, chatID)
	}
	m.mu.Unlock()
	if !open {
		return
	}
	sub.cancel()
	<-sub.done
	m.logger.Debug("unsubscribed", zap.String("chat_id", chatID))
}

// Close tears down every subscription. The manager is unusable afterwards.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	subs := make([]*chatSub, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.subs = make(map[string]*chatSub)
	m.mu.Unlock()
	for _, sub := range subs {
		<-sub.done
	}
}
