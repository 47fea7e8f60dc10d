package service

import (
	"agent_trader/internal/models"
	"agent_trader/internal/modules/config"
	"agent_trader/internal/runner"
	"agent_trader/pkg/logger"
	"context"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender: то, чем отправляются сообщения; *tgbot.BotAPI подходит.
type Sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

type FeedbackReader interface {
	RecentRejects() []models.FeedbackEntry
	RecentErrors() []models.FeedbackEntry
}

// Telegram: канал ручного управления: команды превращаются в намерения во входящей очереди,
// итоги тиков уходят обратно в чат.
type Telegram struct {
	bot    *tgbot.BotAPI
	sender Sender
	chatID int64

	inbox *runner.Inbox
	board *runner.Board
	fb    FeedbackReader
}

var _ runner.Notifier = (*Telegram)(nil)

func NewTelegram(cfg *config.Config, inbox *runner.Inbox, board *runner.Board, fb FeedbackReader) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	t := newTelegram(b, cfg.Telegram.ChatID, inbox, board, fb)
	t.bot = b
	return t, nil
}

func newTelegram(sender Sender, chatID int64, inbox *runner.Inbox, board *runner.Board, fb FeedbackReader) *Telegram {
	return &Telegram{
		sender: sender,
		chatID: chatID,
		inbox:  inbox,
		board:  board,
		fb:     fb,
	}
}

func (t *Telegram) Send(_ context.Context, chatID int64, msg string) (tgbot.Message, error) {
	return t.sender.Send(tgbot.NewMessage(chatID, msg))
}

func (t *Telegram) SendF(ctx context.Context, chatID int64, format string, args ...any) (tgbot.Message, error) {
	return t.Send(ctx, chatID, fmt.Sprintf(format, args...))
}

// Start читает апдейты до отмены ctx или Stop.
func (t *Telegram) Start(ctx context.Context) {
	if t.bot == nil {
		return
	}
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, update)
			}
		}
	}()
	logger.Info("[TG] bot @%s started, chat=%d", t.bot.Self.UserName, t.chatID)
}

func (t *Telegram) Stop() {
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
}

// NotifyTick шлёт в рабочий чат итоги намерений и сделки, закрытые сверкой.
func (t *Telegram) NotifyTick(ctx context.Context, results []models.ExecutionResult, reconciled []*models.Trade) {
	if t.chatID == 0 {
		return
	}
	for _, r := range results {
		if _, err := t.Send(ctx, t.chatID, formatResult(r)); err != nil {
			logger.Warn("[TG] notify result: %v", err)
		}
	}
	for _, tr := range reconciled {
		if _, err := t.Send(ctx, t.chatID, formatReconciled(tr)); err != nil {
			logger.Warn("[TG] notify reconcile: %v", err)
		}
	}
}
