package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramTransport adapts the Bot API client to the Transport interface and
// feeds inbound updates to the orchestrator.
type TelegramTransport struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewTelegramTransport authenticates against the Bot API.
func NewTelegramTransport(token string, logger *slog.Logger) (*TelegramTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("authenticate bot: %w", err)
	}

	logger.Info("telegram bot authorized", "username", api.Self.UserName)
	return &TelegramTransport{api: api, logger: logger}, nil
}

// SendText delivers a plain text message.
func (t *TelegramTransport) SendText(_ context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

// SendMenu delivers a message with an inline keyboard.
func (t *TelegramTransport) SendMenu(_ context.Context, chatID int64, text string, rows [][]Button) error {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		keyboard = append(keyboard, buttons)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send menu: %w", err)
	}
	return nil
}

// SendAudio uploads the fetched audio file to the chat.
func (t *TelegramTransport) SendAudio(_ context.Context, chatID int64, audio Audio) error {
	cfg := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(audio.Path))
	cfg.Title = audio.Title
	cfg.Performer = audio.Performer
	cfg.Duration = audio.Duration
	if _, err := t.api.Send(cfg); err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

// SendVideo uploads the fetched video file to the chat.
func (t *TelegramTransport) SendVideo(_ context.Context, chatID int64, video Video) error {
	cfg := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(video.Path))
	cfg.Caption = video.Caption
	if _, err := t.api.Send(cfg); err != nil {
		return fmt.Errorf("send video: %w", err)
	}
	return nil
}

// Consume long polls for updates and dispatches them to the orchestrator until
// ctx is canceled. Dispatch is sequential; heavy work runs on the pool.
func (t *TelegramTransport) Consume(ctx context.Context, orch *Orchestrator) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30

	updates := t.api.GetUpdatesChan(cfg)
	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.dispatch(ctx, orch, update)
		}
	}
}

func (t *TelegramTransport) dispatch(ctx context.Context, orch *Orchestrator, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		m := update.Message
		orch.HandleMessage(ctx, Message{
			ChatID: m.Chat.ID,
			From:   userInfo(m.From),
			Text:   m.Text,
		})
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.Message == nil {
			return
		}
		// Acknowledge first so the button stops spinning even if handling fails.
		if _, err := t.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
			t.logger.Warn("answer callback", "error", err)
		}
		orch.HandleCallback(ctx, Callback{
			ChatID: q.Message.Chat.ID,
			From:   userInfo(q.From),
			Data:   q.Data,
		})
	}
}

func userInfo(u *tgbotapi.User) UserInfo {
	if u == nil {
		return UserInfo{}
	}
	return UserInfo{
		ID:        u.ID,
		Username:  u.UserName,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

var _ Transport = (*TelegramTransport)(nil)
