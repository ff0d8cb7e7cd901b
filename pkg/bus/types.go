package bus

// ElementKind discriminates the typed tokens of a message.
type ElementKind string

const (
	ElementText    ElementKind = "text"
	ElementMention ElementKind = "mention"
)

// Element is one typed token of a platform message. Mention structure is
// preserved separately from raw text because mention syntax differs by
// platform.
type Element struct {
	Kind   ElementKind `json:"kind"`
	Text   string      `json:"text,omitempty"`
	UserID string      `json:"user_id,omitempty"`
}

// InboundMessage is the platform-abstracted message handed to the
// dispatch planner. SelfID is the bot identity for the connection the
// message arrived on; several bot identities may share one group.
type InboundMessage struct {
	Platform  string            `json:"platform"`
	SelfID    string            `json:"self_id"`
	UserID    string            `json:"user_id"`
	GuildID   string            `json:"guild_id,omitempty"`
	ChannelID string            `json:"channel_id"`
	MessageID string            `json:"message_id,omitempty"`
	Content   string            `json:"content"`
	Elements  []Element         `json:"elements,omitempty"`
	Timestamp int64             `json:"timestamp"`
	Extras    map[string]string `json:"extras,omitempty"`
}

// GroupID returns the identifier under which group state is keyed:
// the guild when present, otherwise the channel.
func (m InboundMessage) GroupID() string {
	if m.GuildID != "" {
		return m.GuildID
	}
	return m.ChannelID
}

// MentionsSelf reports whether any mention element targets the bot
// identity this message arrived on.
func (m InboundMessage) MentionsSelf() bool {
	for _, el := range m.Elements {
		if el.Kind == ElementMention && el.UserID == m.SelfID {
			return true
		}
	}
	return false
}

type OutboundMessage struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}
