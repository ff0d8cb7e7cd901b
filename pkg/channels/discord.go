package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/taleclaw/pkg/bus"
	"github.com/tinyland-inc/taleclaw/pkg/config"
)

const PlatformDiscord = "discord"

type DiscordChannel struct {
	*BaseChannel
	config  config.DiscordConfig
	session *discordgo.Session
}

func NewDiscordChannel(cfg config.DiscordConfig, messageBus *bus.MessageBus) *DiscordChannel {
	return &DiscordChannel{
		BaseChannel: NewBaseChannel(PlatformDiscord, messageBus),
		config:      cfg,
	}
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	if c.config.Token == "" {
		return fmt.Errorf("discord token not configured")
	}

	session, err := discordgo.New("Bot " + c.config.Token)
	if err != nil {
		return fmt.Errorf("creating discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(c.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}

	c.session = session
	c.SetRunning(true)
	c.log.Info("discord gateway connected", "bot_id", session.State.User.ID)
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if c.session == nil {
		return fmt.Errorf("discord session not connected")
	}
	_, err := c.session.ChannelMessageSend(msg.ChannelID, msg.Content)
	return err
}

func (c *DiscordChannel) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	elements := make([]bus.Element, 0, len(m.Mentions)+1)
	if m.Content != "" {
		elements = append(elements, bus.Element{Kind: bus.ElementText, Text: m.Content})
	}
	for _, user := range m.Mentions {
		elements = append(elements, bus.Element{Kind: bus.ElementMention, UserID: user.ID})
	}

	ts := m.Timestamp.Unix()
	if ts <= 0 {
		ts = time.Now().Unix()
	}

	c.Publish(context.Background(), bus.InboundMessage{
		SelfID:    s.State.User.ID,
		UserID:    m.Author.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		Content:   m.Content,
		Elements:  elements,
		Timestamp: ts,
	})
}
