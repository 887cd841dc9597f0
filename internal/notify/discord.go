// Package notify forwards engine events to chat.
package notify

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/vthunder/acuity/internal/engine"
	"github.com/vthunder/acuity/internal/logging"
	"github.com/vthunder/acuity/internal/types"
)

// Sender is the part of *discordgo.Session the notifier uses
type Sender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Source yields engine events; *engine.Engine implements it
type Source interface {
	Subscribe(buffer int) (<-chan engine.Event, func())
}

// NewSession creates a REST-only Discord session for a bot token
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return s, nil
}

// DiscordNotifier posts escalations and completed tasks to a channel
type DiscordNotifier struct {
	sender    Sender
	channelID string
	cancel    func()
	done      chan struct{}
}

// NewDiscordNotifier creates a notifier for channelID
func NewDiscordNotifier(sender Sender, channelID string) *DiscordNotifier {
	return &DiscordNotifier{sender: sender, channelID: channelID}
}

// Start subscribes to src and posts in the background
func (n *DiscordNotifier) Start(src Source) {
	events, cancel := src.Subscribe(32)
	n.cancel = cancel
	n.done = make(chan struct{})
	go func() {
		defer close(n.done)
		n.Run(events)
	}()
	logging.Info("discord-notify", "Started (channel=%s)", n.channelID)
}

// Stop unsubscribes and waits for pending posts
func (n *DiscordNotifier) Stop() {
	if n.cancel == nil {
		return
	}
	n.cancel()
	<-n.done
	n.cancel = nil
}

// Run posts until events is closed
func (n *DiscordNotifier) Run(events <-chan engine.Event) {
	for ev := range events {
		msg := Format(ev)
		if msg == "" {
			continue
		}
		if _, err := n.sender.ChannelMessageSend(n.channelID, msg); err != nil {
			logging.Warn("discord-notify", "Failed to send %s message: %v", ev.Kind, err)
		}
	}
}

// Format renders an event as a chat message. Observations and de-escalations
// render as "" and are not posted.
func Format(ev engine.Event) string {
	switch ev.Kind {
	case engine.EventEscalation:
		tr := ev.Escalation
		if tr == nil || !tr.Escalated() {
			return ""
		}
		switch tr.To {
		case types.LevelWarning:
			return fmt.Sprintf("⚠️ Off task for %d checks in a row: %s", tr.Count, tr.Detail)
		case types.LevelCritical:
			return fmt.Sprintf("🚨 Still off task after %d checks: %s", tr.Count, tr.Detail)
		}
	case engine.EventTaskCompleted:
		ct := ev.Completed
		if ct == nil {
			return ""
		}
		if ct.DurationMs == nil {
			return fmt.Sprintf("✅ Done: %s", ct.Task)
		}
		return fmt.Sprintf("✅ Done: %s (%s, %s focused, %s distracted)", ct.Task,
			formatMs(*ct.DurationMs), formatMs(ct.FocusedMs), formatMs(ct.DistractedMs))
	}
	return ""
}

func formatMs(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Second).String()
}
