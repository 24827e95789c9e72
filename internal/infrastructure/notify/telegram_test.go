package notify

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}
	s.sent = append(s.sent, c)
	return tgbotapi.Message{}, nil
}

func TestTelegramNotifier_Notify(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, 42)

	require.NoError(t, n.Notify(context.Background(), "fire at depot"))
	require.Len(t, sender.sent, 1)

	msg, ok := sender.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	require.EqualValues(t, 42, msg.ChatID)
	require.Equal(t, "🚨 fire at depot", msg.Text)
}

func TestTelegramNotifier_Errors(t *testing.T) {
	require.Error(t, NewTelegramNotifier(&fakeSender{}, 0).Notify(context.Background(), "x"))

	sender := &fakeSender{err: errors.New("flood control")}
	err := NewTelegramNotifier(sender, 42).Notify(context.Background(), "x")
	require.ErrorContains(t, err, "flood control")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, NewTelegramNotifier(&fakeSender{}, 42).Notify(ctx, "x"), context.Canceled)
}
