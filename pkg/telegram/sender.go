package telegram

import (
	"context"
	"errors"
	"fmt"

	tg "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/bucketshop69/bs-vybe-sub000/pkg/dispatch"
)

// Sender adapts the bot API to the dispatcher's transport interface.
type Sender struct {
	bot *tg.Bot
}

func NewSender(bot *tg.Bot) *Sender {
	return &Sender{bot: bot}
}

// SendMessage delivers one HTML message. A 403 from the API means the user
// blocked the bot, surfaced as dispatch.ErrBlocked so the caller can stop
// messaging that chat.
func (s *Sender) SendMessage(ctx context.Context, chatID int64, text string) error {
	disable := true
	_, err := s.bot.SendMessage(ctx, &tg.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disable,
		},
	})
	if err != nil {
		if errors.Is(err, tg.ErrorForbidden) {
			return fmt.Errorf("%w: chat %d", dispatch.ErrBlocked, chatID)
		}
		return err
	}
	return nil
}
