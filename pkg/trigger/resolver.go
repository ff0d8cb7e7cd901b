// Package trigger decides whether an inbound message should summon the
// bot, based on mentions and the layered keyword configuration (global,
// group, per-bot).
//
// Several bot identities can be registered against the same chat group.
// Keyword ownership keeps every bot from replying to every keyword: a
// keyword-mode message triggers only the bot whose own keyword list
// matched. Mentions are a universal override: a user addressing a bot
// explicitly is never silently dropped by ownership arbitration.
package trigger

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/tinyland-inc/taleclaw/pkg/bus"
	"github.com/tinyland-inc/taleclaw/pkg/config"
)

// Resolver evaluates trigger decisions for all registered bot identities.
type Resolver struct {
	mu        sync.RWMutex
	global    []string
	bots      map[string]config.BotKeywords
	mentionRE map[string]*regexp.Regexp
}

// NewResolver creates a resolver with the process-wide global keywords.
func NewResolver(globalKeywords []string) *Resolver {
	return &Resolver{
		global:    append([]string(nil), globalKeywords...),
		bots:      make(map[string]config.BotKeywords),
		mentionRE: make(map[string]*regexp.Regexp),
	}
}

// RegisterBot registers (or replaces) one bot identity's keyword config.
// The raw-content mention pattern for the identity is compiled once here;
// a selfID's pattern is immutable after registration.
func (r *Resolver) RegisterBot(selfID string, cfg config.BotKeywords) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bots[selfID] = cfg
	r.mentionRE[selfID] = compileMentionPattern(selfID)
}

// compileMentionPattern matches direct-mention tokens that survive in raw
// content: Discord's <@id>/<@!id> and OneBot's [CQ:at,qq=id].
func compileMentionPattern(selfID string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(selfID)
	return regexp.MustCompile(fmt.Sprintf(`<@!?%s>|\[CQ:at,qq=%s[,\]]`, quoted, quoted))
}

// BotConfig returns the registered keyword config for selfID, falling
// back to a permissive config for an unregistered identity (no keywords,
// no routing restrictions beyond the group's).
func (r *Resolver) BotConfig(selfID string) config.BotKeywords {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cfg, ok := r.bots[selfID]; ok {
		return cfg
	}
	return config.BotKeywords{
		Routing: config.KeywordRouting{EnableGlobal: true, EnableGroup: true, EnableBot: true},
	}
}

// ShouldTrigger reports whether the bot identified by msg.SelfID must
// enqueue this message. Evaluation order, first match wins:
//
//  1. self-mention (element or raw token): always triggers
//  2. mention-only mode without a mention: never triggers
//  3. effective routing = group AND bot routing, field-by-field
//  4. global keyword match
//  5. group keyword match
//  6. enable_bot gate
//  7. keyword ownership across every registered bot
func (r *Resolver) ShouldTrigger(msg bus.InboundMessage, grp config.GroupConfig) bool {
	if msg.MentionsSelf() || r.mentionedInRaw(msg.SelfID, msg.Content) {
		return true
	}

	if grp.TriggerMode == config.TriggerModeMention {
		return false
	}

	botCfg := r.BotConfig(msg.SelfID)
	// Group-level per-bot overrides take precedence over the registered
	// config when present.
	if grpBot, ok := grp.Bots[msg.SelfID]; ok {
		botCfg = grpBot
	}
	routing := grp.KeywordRouting.And(botCfg.Routing)

	if routing.EnableGlobal && MatchesKeywords(msg.Content, r.globalKeywords()) {
		return true
	}
	if routing.EnableGroup && MatchesKeywords(msg.Content, grp.Keywords) {
		return true
	}

	if !routing.EnableBot {
		return false
	}
	return r.ownsKeywordMatch(msg.SelfID, msg.Content, grp)
}

// ownsKeywordMatch scans every bot's keyword list, not just the current
// bot's, and triggers only when the current bot is among the owners of a
// matching keyword. Another bot owning the match means this bot stays
// silent to avoid duplicate replies.
func (r *Resolver) ownsKeywordMatch(selfID, content string, grp config.GroupConfig) bool {
	for id, cfg := range r.allBots(grp) {
		if !MatchesKeywords(content, cfg.Keywords) {
			continue
		}
		if id == selfID {
			return true
		}
	}
	// No bot keyword matched, or another bot owns the match.
	return false
}

// allBots merges registered bot configs with the group's per-bot
// overrides, the latter winning.
func (r *Resolver) allBots(grp config.GroupConfig) map[string]config.BotKeywords {
	r.mu.RLock()
	merged := make(map[string]config.BotKeywords, len(r.bots)+len(grp.Bots))
	for id, cfg := range r.bots {
		merged[id] = cfg
	}
	r.mu.RUnlock()
	for id, cfg := range grp.Bots {
		merged[id] = cfg
	}
	return merged
}

func (r *Resolver) globalKeywords() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global
}

func (r *Resolver) mentionedInRaw(selfID, content string) bool {
	if selfID == "" || content == "" {
		return false
	}
	r.mu.RLock()
	re, ok := r.mentionRE[selfID]
	r.mu.RUnlock()
	if !ok {
		// Unregistered identity: compile once and cache.
		re = compileMentionPattern(selfID)
		r.mu.Lock()
		r.mentionRE[selfID] = re
		r.mu.Unlock()
	}
	return re.MatchString(content)
}
