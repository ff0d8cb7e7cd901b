package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/taleclaw/pkg/bus"
	"github.com/tinyland-inc/taleclaw/pkg/config"
)

const PlatformOneBot = "onebot"

const (
	oneBotDedupSize         = 1024
	oneBotReconnectInterval = 5 * time.Second
	oneBotHandshakeTimeout  = 10 * time.Second
)

// OneBotChannel speaks the OneBot v11 forward-websocket protocol used
// by QQ bridges. Events arrive as JSON frames; API calls are written
// back on the same connection.
type OneBotChannel struct {
	*BaseChannel
	config config.OneBotConfig
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	dedup     map[string]struct{}
	dedupRing []string
	dedupIdx  int
	dedupMu   sync.Mutex
}

type oneBotRawEvent struct {
	PostType      string          `json:"post_type"`
	MessageType   string          `json:"message_type"`
	MessageID     json.RawMessage `json:"message_id"`
	UserID        json.RawMessage `json:"user_id"`
	GroupID       json.RawMessage `json:"group_id"`
	SelfID        json.RawMessage `json:"self_id"`
	RawMessage    string          `json:"raw_message"`
	Time          json.RawMessage `json:"time"`
	MetaEventType string          `json:"meta_event_type"`
	Echo          string          `json:"echo"`
}

type oneBotAPIRequest struct {
	Action string `json:"action"`
	Params any    `json:"params"`
}

func NewOneBotChannel(cfg config.OneBotConfig, messageBus *bus.MessageBus) *OneBotChannel {
	return &OneBotChannel{
		BaseChannel: NewBaseChannel(PlatformOneBot, messageBus),
		config:      cfg,
		dedup:       make(map[string]struct{}, oneBotDedupSize),
		dedupRing:   make([]string, oneBotDedupSize),
	}
}

func (c *OneBotChannel) Start(ctx context.Context) error {
	if c.config.URL == "" {
		return fmt.Errorf("onebot ws url not configured")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		c.log.Warn("initial connection failed, retrying in background", "error", err)
	} else {
		go c.listen()
	}
	go c.reconnectLoop()

	c.SetRunning(true)
	return nil
}

func (c *OneBotChannel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	return nil
}

func (c *OneBotChannel) connect() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = oneBotHandshakeTimeout

	header := http.Header{}
	if c.config.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.config.AccessToken)
	}

	conn, _, err := dialer.Dial(c.config.URL, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.log.Info("websocket connected", "url", c.config.URL)
	return nil
}

func (c *OneBotChannel) reconnectLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(oneBotReconnectInterval):
			c.mu.Lock()
			connected := c.conn != nil
			c.mu.Unlock()

			if !connected {
				if err := c.connect(); err != nil {
					c.log.Warn("reconnect failed", "error", err)
				} else {
					go c.listen()
				}
			}
		}
	}
}

func (c *OneBotChannel) listen() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.log.Warn("websocket read error", "error", err)
			c.mu.Lock()
			if c.conn != nil {
				c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			return
		}

		var raw oneBotRawEvent
		if err := json.Unmarshal(frame, &raw); err != nil {
			c.log.Warn("undecodable event frame", "error", err)
			continue
		}
		if raw.Echo != "" || raw.PostType != "message" {
			continue
		}

		c.handleMessageEvent(&raw)
	}
}

func (c *OneBotChannel) handleMessageEvent(raw *oneBotRawEvent) {
	messageID := rawJSONString(raw.MessageID)
	if c.isDuplicate(messageID) {
		return
	}

	userID, err := rawJSONInt64(raw.UserID)
	if err != nil {
		c.log.Warn("event without parseable user_id", "raw", string(raw.UserID))
		return
	}
	selfID, _ := rawJSONInt64(raw.SelfID)
	groupID, _ := rawJSONInt64(raw.GroupID)
	ts, _ := rawJSONInt64(raw.Time)
	if ts <= 0 {
		ts = time.Now().Unix()
	}

	content := strings.TrimSpace(raw.RawMessage)
	if content == "" {
		return
	}

	var channelID string
	switch raw.MessageType {
	case "group":
		channelID = "group:" + strconv.FormatInt(groupID, 10)
	case "private":
		channelID = "private:" + strconv.FormatInt(userID, 10)
	default:
		return
	}

	c.Publish(c.ctx, bus.InboundMessage{
		SelfID:    strconv.FormatInt(selfID, 10),
		UserID:    strconv.FormatInt(userID, 10),
		ChannelID: channelID,
		MessageID: messageID,
		Content:   content,
		Elements:  parseCQElements(content),
		Timestamp: ts,
	})
}

func (c *OneBotChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("onebot websocket not connected")
	}

	action, params, err := buildSendRequest(msg)
	if err != nil {
		return err
	}

	data, err := json.Marshal(oneBotAPIRequest{Action: action, Params: params})
	if err != nil {
		return fmt.Errorf("encoding onebot request: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func buildSendRequest(msg bus.OutboundMessage) (string, any, error) {
	if id, ok := strings.CutPrefix(msg.ChannelID, "group:"); ok {
		groupID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid group channel id %q", msg.ChannelID)
		}
		return "send_group_msg", map[string]any{
			"group_id": groupID,
			"message":  msg.Content,
		}, nil
	}

	id := strings.TrimPrefix(msg.ChannelID, "private:")
	userID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return "", nil, fmt.Errorf("invalid private channel id %q", msg.ChannelID)
	}
	return "send_private_msg", map[string]any{
		"user_id": userID,
		"message": msg.Content,
	}, nil
}

// Bridges redeliver events after reconnects; a fixed-size ring keeps
// recently seen message ids.
func (c *OneBotChannel) isDuplicate(messageID string) bool {
	if messageID == "" || messageID == "0" {
		return false
	}

	c.dedupMu.Lock()
	defer c.dedupMu.Unlock()

	if _, seen := c.dedup[messageID]; seen {
		return true
	}
	if old := c.dedupRing[c.dedupIdx]; old != "" {
		delete(c.dedup, old)
	}
	c.dedupRing[c.dedupIdx] = messageID
	c.dedup[messageID] = struct{}{}
	c.dedupIdx = (c.dedupIdx + 1) % len(c.dedupRing)
	return false
}

var cqCodeRE = regexp.MustCompile(`\[CQ:([a-zA-Z0-9_]+)(?:,([^\]]*))?\]`)

// parseCQElements splits a raw CQ-coded message into typed elements.
// Only at codes become mentions; other codes are dropped, their
// surrounding text kept.
func parseCQElements(content string) []bus.Element {
	matches := cqCodeRE.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return []bus.Element{{Kind: bus.ElementText, Text: content}}
	}

	elements := make([]bus.Element, 0, len(matches)+1)
	cursor := 0
	for _, m := range matches {
		if m[0] > cursor {
			elements = append(elements, bus.Element{Kind: bus.ElementText, Text: content[cursor:m[0]]})
		}

		codeType := content[m[2]:m[3]]
		params := ""
		if m[4] >= 0 {
			params = content[m[4]:m[5]]
		}
		if codeType == "at" {
			if qq := cqParam(params, "qq"); qq != "" {
				elements = append(elements, bus.Element{Kind: bus.ElementMention, UserID: qq})
			}
		}
		cursor = m[1]
	}
	if cursor < len(content) {
		elements = append(elements, bus.Element{Kind: bus.ElementText, Text: content[cursor:]})
	}
	return elements
}

func cqParam(params, key string) string {
	for _, item := range strings.Split(params, ",") {
		k, v, ok := strings.Cut(item, "=")
		if ok && strings.TrimSpace(k) == key {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func rawJSONInt64(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseInt(s, 10, 64)
	}
	return 0, fmt.Errorf("not an int64: %s", string(raw))
}

func rawJSONString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
