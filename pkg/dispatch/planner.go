// Package dispatch turns one inbound message into exactly one routing
// verdict: answer a dice roll, enqueue for AI processing, or drop.
package dispatch

import (
	"log/slog"
	"strings"

	"github.com/tinyland-inc/taleclaw/pkg/bus"
	"github.com/tinyland-inc/taleclaw/pkg/config"
	"github.com/tinyland-inc/taleclaw/pkg/logger"
	"github.com/tinyland-inc/taleclaw/pkg/trigger"
)

// VerdictKind discriminates planner outcomes.
type VerdictKind string

const (
	VerdictDice    VerdictKind = "dice"
	VerdictEnqueue VerdictKind = "enqueue"
	VerdictDrop    VerdictKind = "drop"
)

// Machine-readable drop reasons, surfaced for observability. A drop is a
// first-class verdict, not an error.
const (
	ReasonGroupDisabled        = "group_disabled"
	ReasonTriggerNotMatched    = "trigger_not_matched"
	ReasonSessionKeyExceedsMax = "session_key_exceeds_max_sessions"
)

// Verdict is the planner's routing decision for one message. SessionKey
// and Content (prefix-stripped) accompany dice and enqueue verdicts.
type Verdict struct {
	Kind       VerdictKind
	Dice       DiceRoll
	Reason     string
	SessionKey int
	Content    string
}

// alwaysEnqueuePrefixes are slash-style utility commands sent as plain
// chat text. They bypass trigger resolution, since mention-gating a
// command the user typed deliberately would be surprising, but never
// the session slot bound.
var alwaysEnqueuePrefixes = []string{"/nano", "/polish", "/quest"}

// Planner composes the trigger resolver, session-key extraction and the
// fixed fast-path rules into one verdict per message.
type Planner struct {
	resolver *trigger.Resolver
	log      *slog.Logger
}

func NewPlanner(resolver *trigger.Resolver) *Planner {
	return &Planner{
		resolver: resolver,
		log:      logger.ForComponent(logger.CompDispatch),
	}
}

func drop(reason string) Verdict {
	return Verdict{Kind: VerdictDrop, Reason: reason}
}

// Plan evaluates, in order: group enabled, session-key extraction, dice
// fast-path, always-enqueue command prefixes, trigger resolution, slot
// bound. Dice and always-enqueue run strictly prior to keyword-ownership
// arbitration; the slot bound applies to every non-drop outcome so
// attacker-controlled "#<huge>" prefixes cannot create unbounded
// session state.
func (p *Planner) Plan(msg bus.InboundMessage, grp config.GroupConfig) Verdict {
	if !grp.Enabled {
		return drop(ReasonGroupDisabled)
	}

	sk := ExtractSessionKey(msg.Content)

	if roll, ok := ParseDiceRoll(sk.Content); ok {
		if sk.Key >= grp.MaxSessions {
			return drop(ReasonSessionKeyExceedsMax)
		}
		return Verdict{Kind: VerdictDice, Dice: roll, SessionKey: sk.Key, Content: sk.Content}
	}

	if hasAlwaysEnqueuePrefix(sk.Content) {
		if sk.Key >= grp.MaxSessions {
			return drop(ReasonSessionKeyExceedsMax)
		}
		return Verdict{Kind: VerdictEnqueue, SessionKey: sk.Key, Content: sk.Content}
	}

	// Trigger patterns match against the content with the session-key
	// prefix stripped, so a keyword never has to account for "#<n> ".
	stripped := msg
	stripped.Content = sk.Content
	if !p.resolver.ShouldTrigger(stripped, grp) {
		p.log.Debug("message dropped",
			slog.String("reason", ReasonTriggerNotMatched),
			slog.String("self_id", msg.SelfID),
			slog.String("group_id", msg.GroupID()))
		return drop(ReasonTriggerNotMatched)
	}

	if sk.Key >= grp.MaxSessions {
		return drop(ReasonSessionKeyExceedsMax)
	}
	return Verdict{Kind: VerdictEnqueue, SessionKey: sk.Key, Content: sk.Content}
}

func hasAlwaysEnqueuePrefix(content string) bool {
	trimmed := strings.TrimSpace(content)
	for _, prefix := range alwaysEnqueuePrefixes {
		if trimmed == prefix || strings.HasPrefix(trimmed, prefix+" ") {
			return true
		}
	}
	return false
}
