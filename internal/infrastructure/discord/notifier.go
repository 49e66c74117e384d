package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"RecipeCollector/internal/ports"
)

// maxContentLen is Discord's limit for a single message body.
const maxContentLen = 2000

type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts run summaries to a Discord report channel.
type Notifier struct {
	api       messageSender
	channelID string
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers the session and report channel identifier.
func NewNotifier(api messageSender, channelID string) *Notifier {
	return &Notifier{api: api, channelID: channelID}
}

// PublishSummary sends the summary as a code block so the link list stays aligned.
func (n *Notifier) PublishSummary(ctx context.Context, summary string) error {
	if n.api == nil || n.channelID == "" {
		return fmt.Errorf("discord notifier misconfigured")
	}

	content := "```\n" + summary + "\n```"
	if len(content) > maxContentLen {
		content = "```\n" + truncate(summary, maxContentLen-12) + "\n…\n```"
	}

	if _, err := n.api.ChannelMessageSend(n.channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send summary: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// back off to a rune boundary
	for n > 0 && (s[n]&0xC0) == 0x80 {
		n--
	}
	return s[:n]
}
