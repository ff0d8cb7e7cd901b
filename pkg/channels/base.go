// Package channels adapts platform connections (Discord, OneBot) to
// the message bus. Each channel normalizes inbound platform events into
// bus.InboundMessage and delivers outbound replies.
package channels

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/tinyland-inc/taleclaw/pkg/bus"
	"github.com/tinyland-inc/taleclaw/pkg/logger"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

type BaseChannel struct {
	bus     *bus.MessageBus
	running atomic.Bool
	name    string
	log     *slog.Logger
}

func NewBaseChannel(name string, messageBus *bus.MessageBus) *BaseChannel {
	return &BaseChannel{
		bus:  messageBus,
		name: name,
		log:  logger.ForComponent(logger.CompChannel).With("channel", name),
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) SetRunning(running bool) {
	c.running.Store(running)
}

// Publish hands a normalized message to the bus. The platform field is
// always the channel's own name.
func (c *BaseChannel) Publish(ctx context.Context, msg bus.InboundMessage) {
	msg.Platform = c.name
	if err := c.bus.PublishInbound(ctx, msg); err != nil {
		c.log.Warn("dropping inbound message",
			"channel_id", msg.ChannelID,
			"error", err)
	}
}

// Manager owns the set of configured channels and routes outbound
// messages to the channel matching their platform.
type Manager struct {
	channels map[string]Channel
	log      *slog.Logger
}

func NewManager(chs ...Channel) *Manager {
	m := &Manager{
		channels: make(map[string]Channel, len(chs)),
		log:      logger.ForComponent(logger.CompChannel),
	}
	for _, ch := range chs {
		m.channels[ch.Name()] = ch
	}
	return m
}

func (m *Manager) StartAll(ctx context.Context) error {
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			return err
		}
		m.log.Info("channel started", "channel", name)
	}
	return nil
}

func (m *Manager) StopAll(ctx context.Context) {
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			m.log.Warn("channel stop failed", "channel", name, "error", err)
		}
	}
}

func (m *Manager) Send(ctx context.Context, msg bus.OutboundMessage) error {
	ch, ok := m.channels[msg.Platform]
	if !ok {
		m.log.Warn("no channel for platform", "platform", msg.Platform)
		return nil
	}
	return ch.Send(ctx, msg)
}
