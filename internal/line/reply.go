package line

import (
	"context"
	"errors"
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// maxTextRunes is the Messaging API limit for one text message.
const maxTextRunes = 5000

// Replier sends text replies through the Messaging API.
type Replier struct {
	api *messaging_api.MessagingApiAPI
}

func NewReplier(channelAccessToken string, opts ...messaging_api.MessagingApiAPIOption) (*Replier, error) {
	if channelAccessToken == "" {
		return nil, errors.New("line: channel access token is empty")
	}
	api, err := messaging_api.NewMessagingApiAPI(channelAccessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("line: create messaging client: %w", err)
	}
	return &Replier{api: api}, nil
}

func (r *Replier) Reply(ctx context.Context, replyToken, text string) error {
	if replyToken == "" {
		return errors.New("line: empty reply token")
	}
	_, err := r.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: clip(text, maxTextRunes)},
		},
	})
	if err != nil {
		return fmt.Errorf("line: reply message: %w", err)
	}
	return nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
