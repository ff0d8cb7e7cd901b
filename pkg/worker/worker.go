// Package worker runs enqueued messages through the AI provider inside
// their session. A fixed pool of goroutines drains the task queue so a
// slow provider call never blocks channel ingestion.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tinyland-inc/taleclaw/pkg/bus"
	"github.com/tinyland-inc/taleclaw/pkg/logger"
	anthropicprovider "github.com/tinyland-inc/taleclaw/pkg/providers/anthropic"
	"github.com/tinyland-inc/taleclaw/pkg/session"
	"github.com/tinyland-inc/taleclaw/pkg/userstate"
)

const defaultSystemPrompt = "You are a collaborative storytelling game master. " +
	"Stay in the scene, keep replies short and move the story forward."

// historyWindow bounds how many stored turns are replayed to the
// provider per request.
const historyWindow = 40

// ChatProvider is the surface the worker needs from an AI backend.
type ChatProvider interface {
	Chat(ctx context.Context, system string, messages []anthropicprovider.Message, model string) (string, error)
}

// Task is one enqueued message bound to a session slot.
type Task struct {
	Msg         bus.InboundMessage
	SessionKey  int
	MaxSessions int
	Content     string
	Model       string
}

type Worker struct {
	sessions *session.Manager
	users    *userstate.Store
	provider ChatProvider
	bus      *bus.MessageBus
	log      *slog.Logger
}

func NewWorker(sessions *session.Manager, users *userstate.Store, provider ChatProvider, messageBus *bus.MessageBus) *Worker {
	return &Worker{
		sessions: sessions,
		users:    users,
		provider: provider,
		bus:      messageBus,
		log:      logger.ForComponent(logger.CompWorker),
	}
}

// Handle runs one task to completion: bind the session, record the user
// turn, ask the provider, record and deliver the reply.
func (w *Worker) Handle(ctx context.Context, task Task) {
	groupID := task.Msg.GroupID()

	info, err := w.sessions.Create(groupID, task.Msg.UserID, session.CreateOptions{
		Key:         task.SessionKey,
		MaxSessions: task.MaxSessions,
	})
	if err != nil {
		w.replyToCreateError(ctx, task, err)
		return
	}

	running, err := w.sessions.UpdateStatus(info, session.StatusRunning)
	if err != nil {
		w.log.Error("marking session running", "session_id", info.SessionID, "error", err)
		return
	}
	info = running
	defer func() {
		if _, err := w.sessions.UpdateStatus(info, session.StatusIdle); err != nil {
			w.log.Warn("marking session idle", "session_id", info.SessionID, "error", err)
		}
	}()

	if err := w.sessions.AppendHistory(info, session.HistoryEntry{
		Role:    "user",
		Content: task.Content,
	}); err != nil {
		w.log.Error("recording user turn", "session_id", info.SessionID, "error", err)
		return
	}

	if strings.HasPrefix(task.Content, "/") {
		if _, err := w.users.AppendCommandTranscript(task.Msg.UserID, task.Content); err != nil {
			w.log.Warn("recording command transcript", "user_id", task.Msg.UserID, "error", err)
		}
	}

	history, err := w.sessions.ReadHistory(info)
	if err != nil {
		w.log.Error("reading session history", "session_id", info.SessionID, "error", err)
		return
	}

	reply, err := w.provider.Chat(ctx, defaultSystemPrompt, buildMessages(history), task.Model)
	if err != nil {
		w.log.Error("provider call failed", "session_id", info.SessionID, "error", err)
		return
	}
	if reply == "" {
		w.log.Warn("provider returned empty reply", "session_id", info.SessionID)
		return
	}

	if err := w.sessions.AppendHistory(info, session.HistoryEntry{
		Role:    "assistant",
		Content: reply,
	}); err != nil {
		w.log.Warn("recording assistant turn", "session_id", info.SessionID, "error", err)
	}

	w.send(ctx, task.Msg, reply)
}

func (w *Worker) replyToCreateError(ctx context.Context, task Task, err error) {
	switch {
	case errors.Is(err, session.ErrOwnershipMismatch):
		w.send(ctx, task.Msg, fmt.Sprintf("Session #%d belongs to another player.", task.SessionKey))
	case errors.Is(err, session.ErrKeyExceedsMax):
		// The planner bounds keys before enqueueing; reaching this
		// means the group config shrank in between. Stay silent.
		w.log.Debug("session key exceeds max at create time",
			"group_id", task.Msg.GroupID(), "key", task.SessionKey)
	default:
		w.log.Error("creating session",
			"group_id", task.Msg.GroupID(), "key", task.SessionKey, "error", err)
	}
}

func (w *Worker) send(ctx context.Context, msg bus.InboundMessage, content string) {
	err := w.bus.PublishOutbound(ctx, bus.OutboundMessage{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		Content:   content,
	})
	if err != nil {
		w.log.Warn("publishing outbound reply", "channel_id", msg.ChannelID, "error", err)
	}
}

func buildMessages(history []session.HistoryEntry) []anthropicprovider.Message {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	out := make([]anthropicprovider.Message, 0, len(history))
	for _, entry := range history {
		out = append(out, anthropicprovider.Message{Role: entry.Role, Content: entry.Content})
	}
	return out
}

// Pool fans tasks out to a fixed number of workers.
type Pool struct {
	worker *Worker
	tasks  chan Task
	size   int
	wg     sync.WaitGroup
}

func NewPool(size int, worker *Worker) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		worker: worker,
		tasks:  make(chan Task, size*4),
		size:   size,
	}
}

// Run consumes tasks until the context is cancelled and pending tasks
// are finished.
func (p *Pool) Run(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-p.tasks:
					p.worker.Handle(ctx, task)
				}
			}
		}()
	}
	p.wg.Wait()
}

// Submit enqueues a task, dropping it if the queue stays full until the
// context expires.
func (p *Pool) Submit(ctx context.Context, task Task) bool {
	select {
	case p.tasks <- task:
		return true
	case <-ctx.Done():
		return false
	}
}
