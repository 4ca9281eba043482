package notifier

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/raythurman2386/claudegram/internal/formatter"
)

// Discord has a 2000 character limit
const discordLimit = 2000

// discordAPI is the subset of *discordgo.Session used here.
type discordAPI interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// DiscordNotifier mirrors announcements into a Discord channel. Discord
// renders Markdown itself, so messages are only split, never converted.
type DiscordNotifier struct {
	session   discordAPI
	channelID string
}

func NewDiscordNotifier(token string, channelID string) (*DiscordNotifier, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize discord session: %w", err)
	}
	return &DiscordNotifier{session: dg, channelID: channelID}, nil
}

func (d *DiscordNotifier) Send(ctx context.Context, message string) error {
	chunks, err := formatter.Split(message, discordLimit)
	if err != nil {
		return fmt.Errorf("failed to split discord message: %w", err)
	}

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("discord delivery interrupted: %w", err)
		}
		if _, err := d.session.ChannelMessageSend(d.channelID, chunk); err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
	}

	return nil
}

func (d *DiscordNotifier) Name() string {
	return "Discord"
}

// StartTyping shows the typing indicator once; Discord keeps it for ~10s.
func (d *DiscordNotifier) StartTyping(ctx context.Context) func() {
	_ = d.session.ChannelTyping(d.channelID)
	return func() {}
}
