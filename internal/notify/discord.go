package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/tracehq/trace/internal/types"
)

// MaxDiscordMessageLength is Discord's maximum message length.
const MaxDiscordMessageLength = 2000

// maxNotifyAttempts is the generic-API retry budget of spec 5 (5
// attempts, exponential backoff, base 1s, cap 60s).
const maxNotifyAttempts = 5

// DiscordNotifier delivers notifications to a single fixed Discord
// channel. It's a direct descendant of the teacher's DiscordEffector,
// stripped of the outbox-polling loop, action-type dispatch, and
// typing-indicator bookkeeping the teacher needed for a conversational
// bot — none of that applies to a one-shot `Notify` call — but keeping
// its message chunking and retryable-error classification exactly.
type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscordNotifier returns a notifier that posts to channelID using
// an already-authenticated session.
func NewDiscordNotifier(session *discordgo.Session, channelID string) *DiscordNotifier {
	return &DiscordNotifier{session: session, channelID: channelID}
}

// Notify sends n as one or more chunked Discord messages, retrying
// retryable failures with exponential backoff.
func (d *DiscordNotifier) Notify(ctx context.Context, n types.Notification) error {
	content := formatNotification(n)
	for _, chunk := range chunkMessage(content, MaxDiscordMessageLength) {
		if err := d.sendWithRetry(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func formatNotification(n types.Notification) string {
	return fmt.Sprintf("[%s] %s\n%s", strings.ToUpper(string(n.Level)), n.Title, n.Body)
}

func (d *DiscordNotifier) sendWithRetry(ctx context.Context, content string) error {
	backoff := time.Second
	var lastErr error
	for attempt := 0; attempt < maxNotifyAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
		}

		_, err := d.session.ChannelMessageSend(d.channelID, content)
		if err == nil {
			return nil
		}
		lastErr = err
		if isNonRetryableError(err) {
			return fmt.Errorf("discord notify: %w", err)
		}
	}
	return fmt.Errorf("discord notify failed after %d attempts: %w", maxNotifyAttempts, lastErr)
}

// isNonRetryableError reports whether err is a Discord 4xx client
// error that retrying won't fix.
func isNonRetryableError(err error) bool {
	if restErr, ok := err.(*discordgo.RESTError); ok {
		if restErr.Response != nil && restErr.Response.StatusCode >= 400 && restErr.Response.StatusCode < 500 {
			return true
		}
	}
	return false
}

// chunkMessage splits content into pieces that fit within maxLen,
// preferring to split on paragraph, then line, then word boundaries.
func chunkMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}

	var chunks []string
	remaining := content
	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			chunks = append(chunks, remaining)
			break
		}
		splitAt := findSplitPoint(remaining, maxLen)
		chunks = append(chunks, strings.TrimRight(remaining[:splitAt], " \n"))
		remaining = strings.TrimLeft(remaining[splitAt:], " \n")
	}
	return chunks
}

func findSplitPoint(content string, maxLen int) int {
	if len(content) <= maxLen {
		return len(content)
	}
	searchArea := content[:maxLen]
	if idx := strings.LastIndex(searchArea, "\n\n"); idx > maxLen/2 {
		return idx + 2
	}
	if idx := strings.LastIndex(searchArea, "\n"); idx > maxLen/2 {
		return idx + 1
	}
	if idx := strings.LastIndex(searchArea, " "); idx > maxLen/2 {
		return idx + 1
	}
	return maxLen
}
