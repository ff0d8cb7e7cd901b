// Package core wires channels, dispatch, sessions and the worker pool
// into the running gateway.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/tinyland-inc/taleclaw/pkg/bus"
	"github.com/tinyland-inc/taleclaw/pkg/channels"
	"github.com/tinyland-inc/taleclaw/pkg/config"
	"github.com/tinyland-inc/taleclaw/pkg/dispatch"
	"github.com/tinyland-inc/taleclaw/pkg/logger"
	"github.com/tinyland-inc/taleclaw/pkg/worker"
)

type Gateway struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	channels *channels.Manager
	groups   *config.GroupRepository
	planner  *dispatch.Planner
	pool     *worker.Pool
	rollDie  func(sides int) int
	log      *slog.Logger
}

func NewGateway(
	cfg *config.Config,
	messageBus *bus.MessageBus,
	channelManager *channels.Manager,
	groups *config.GroupRepository,
	planner *dispatch.Planner,
	pool *worker.Pool,
) *Gateway {
	return &Gateway{
		cfg:      cfg,
		bus:      messageBus,
		channels: channelManager,
		groups:   groups,
		planner:  planner,
		pool:     pool,
		rollDie:  func(sides int) int { return 1 + rand.IntN(sides) },
		log:      logger.ForComponent(logger.CompGateway),
	}
}

// Run pumps inbound messages through the planner and outbound replies
// back to their channel until the context is cancelled.
func (g *Gateway) Run(ctx context.Context) {
	go g.outboundLoop(ctx)

	for {
		msg, ok := g.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		g.handleInbound(ctx, msg)
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	groupID := msg.GroupID()

	grp, err := g.groups.Load(groupID)
	if err != nil {
		g.log.Error("loading group config", "group_id", groupID, "error", err)
		return
	}

	verdict := g.planner.Plan(msg, grp)
	switch verdict.Kind {
	case dispatch.VerdictDice:
		g.reply(ctx, msg, g.rollDice(verdict.Dice))

	case dispatch.VerdictEnqueue:
		model := grp.Model
		if model == "" {
			model = g.cfg.Provider.Model
		}
		submitted := g.pool.Submit(ctx, worker.Task{
			Msg:         msg,
			SessionKey:  verdict.SessionKey,
			MaxSessions: grp.MaxSessions,
			Content:     verdict.Content,
			Model:       model,
		})
		if !submitted {
			g.log.Warn("task queue rejected message", "group_id", groupID)
		}

	case dispatch.VerdictDrop:
		g.log.Debug("message dropped",
			"reason", verdict.Reason,
			"group_id", groupID,
			"self_id", msg.SelfID)
	}
}

func (g *Gateway) outboundLoop(ctx context.Context) {
	for {
		msg, ok := g.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		if err := g.channels.Send(ctx, msg); err != nil {
			g.log.Warn("delivering outbound message",
				"platform", msg.Platform,
				"channel_id", msg.ChannelID,
				"error", err)
		}
	}
}

func (g *Gateway) reply(ctx context.Context, msg bus.InboundMessage, content string) {
	err := g.bus.PublishOutbound(ctx, bus.OutboundMessage{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		Content:   content,
	})
	if err != nil {
		g.log.Warn("publishing reply", "channel_id", msg.ChannelID, "error", err)
	}
}

// rollDice answers an NdM roll, e.g. "2d6: 3 + 5 = 8".
func (g *Gateway) rollDice(roll dispatch.DiceRoll) string {
	results := make([]string, roll.Count)
	total := 0
	for i := 0; i < roll.Count; i++ {
		n := g.rollDie(roll.Sides)
		total += n
		results[i] = fmt.Sprintf("%d", n)
	}
	if roll.Count == 1 {
		return fmt.Sprintf("%dd%d: %d", roll.Count, roll.Sides, total)
	}
	return fmt.Sprintf("%dd%d: %s = %d", roll.Count, roll.Sides, strings.Join(results, " + "), total)
}
