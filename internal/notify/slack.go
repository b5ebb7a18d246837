package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"clientpulse/internal/httpx"
)

type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type SlackNotifier struct {
	api       slackPoster
	channelID string
}

func NewSlackNotifier(token, channelID string, opts ...slack.Option) *SlackNotifier {
	opts = append([]slack.Option{slack.OptionHTTPClient(httpx.ExternalHTTPClient())}, opts...)
	return &SlackNotifier{api: slack.New(token, opts...), channelID: channelID}
}

func (n *SlackNotifier) Name() string { return "slack" }

func (n *SlackNotifier) Notify(ctx context.Context, text string) error {
	if _, _, err := n.api.PostMessageContext(ctx, n.channelID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("post to channel %s: %w", n.channelID, err)
	}
	return nil
}
