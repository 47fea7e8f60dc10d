package service

import (
	"agent_trader/pkg/logger"
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	chatID := msg.Chat.ID

	// бот однопользовательский: чужие чаты не управляют счётом
	if t.chatID != 0 && chatID != t.chatID {
		logger.Warn("[TG] command /%s from foreign chat %d", msg.Command(), chatID)
		_, _ = t.Send(ctx, chatID, "⛔️ Нет доступа")
		return
	}

	reply := t.handleCommand(strings.ToLower(msg.Command()), strings.Fields(msg.CommandArguments()))
	if _, err := t.Send(ctx, chatID, reply); err != nil {
		logger.Error("[TG] send reply: %v", err)
	}
}

// handleCommand возвращает текст ответа.
func (t *Telegram) handleCommand(cmd string, args []string) string {
	switch cmd {
	case "start", "help":
		return helpText
	case "positions":
		snap, ok := t.board.Snapshot()
		if !ok {
			return "⏳ Ещё не было ни одного тика"
		}
		return formatPositions(snap)
	case "stats":
		snap, ok := t.board.Snapshot()
		if !ok {
			return "⏳ Ещё не было ни одного тика"
		}
		return formatStats(snap.Stats)
	case "rejects":
		return formatFeedback("⚠️ Последние отказы", t.fb.RecentRejects())
	case "errors":
		return formatFeedback("❗️ Последние ошибки", t.fb.RecentErrors())
	}

	in, err := parseIntent(cmd, args)
	if err != nil {
		if errors.Is(err, errUsage) {
			if u, ok := usage[cmd]; ok {
				return "Формат: " + u
			}
		}
		return "❌ " + err.Error()
	}

	if _, err := t.inbox.Submit(in); err != nil {
		logger.Warn("[TG] inbox: %v", err)
		return "❌ Очередь переполнена, попробуй позже"
	}
	logger.Info("[TG] queued %s %s %s", in.Type, in.Symbol, in.Side)
	return "📥 Принято: " + describeIntent(in)
}
