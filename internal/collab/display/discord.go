package display

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// DefaultWakeCommand is the chat message that triggers a manual wake.
const DefaultWakeCommand = "!jarvis"

// maxMessageRunes is the Discord message content limit.
const maxMessageRunes = 2000

// DiscordConfig configures [Discord].
type DiscordConfig struct {
	// Token is the bot token without the "Bot " prefix.
	Token string

	// ChannelID receives every shown message.
	ChannelID string

	// WakeCommand, posted in ChannelID, calls the trigger. Empty means
	// [DefaultWakeCommand].
	WakeCommand string
}

// messageSender is the part of *discordgo.Session used to post messages.
type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts shown text to a channel and doubles as a remote toggle:
// posting the wake command in that channel starts a recognition session.
type Discord struct {
	session     *discordgo.Session
	sender      messageSender
	channelID   string
	wakeCommand string

	mu      sync.RWMutex
	trigger func(source string)

	closeOnce sync.Once
	closeErr  error
}

var _ Sink = (*Discord)(nil)

// NewDiscord connects to the gateway and starts listening for the wake
// command.
func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("display: discord: token is required")
	}
	if cfg.ChannelID == "" {
		return nil, fmt.Errorf("display: discord: channel_id is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("display: discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	d := newDiscord(session, cfg)
	d.session = session
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		selfID := ""
		if s.State != nil && s.State.User != nil {
			selfID = s.State.User.ID
		}
		d.handleMessage(selfID, m)
	})

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("display: discord: open session: %w", err)
	}
	return d, nil
}

func newDiscord(sender messageSender, cfg DiscordConfig) *Discord {
	wake := cfg.WakeCommand
	if wake == "" {
		wake = DefaultWakeCommand
	}
	return &Discord{sender: sender, channelID: cfg.ChannelID, wakeCommand: wake}
}

// OnTrigger sets the callback for the wake command. It replaces any earlier
// callback.
func (d *Discord) OnTrigger(fn func(source string)) {
	d.mu.Lock()
	d.trigger = fn
	d.mu.Unlock()
}

// Show implements [Sink]. Text longer than one message is truncated.
func (d *Discord) Show(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if r := []rune(text); len(r) > maxMessageRunes {
		text = string(r[:maxMessageRunes-1]) + "…"
	}
	if _, err := d.sender.ChannelMessageSend(d.channelID, text); err != nil {
		slog.Warn("display: discord send failed", "channel", d.channelID, "err", err)
	}
}

func (d *Discord) handleMessage(selfID string, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.ChannelID != d.channelID {
		return
	}
	if m.Author != nil && (m.Author.Bot || m.Author.ID == selfID) {
		return
	}
	if !strings.EqualFold(strings.TrimSpace(m.Content), d.wakeCommand) {
		return
	}
	d.mu.RLock()
	fn := d.trigger
	d.mu.RUnlock()
	if fn == nil {
		return
	}
	slog.Debug("display: discord wake command", "author", authorName(m))
	fn("discord")
}

func authorName(m *discordgo.MessageCreate) string {
	if m.Author == nil {
		return ""
	}
	return m.Author.Username
}

// Close disconnects from the gateway.
func (d *Discord) Close() error {
	d.closeOnce.Do(func() {
		if d.session == nil {
			return
		}
		if err := d.session.Close(); err != nil {
			d.closeErr = fmt.Errorf("display: discord: close session: %w", err)
		}
	})
	return d.closeErr
}
