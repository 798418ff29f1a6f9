package main

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

// commandHandlerFunc handles one inbound command message.
type commandHandlerFunc func(msg *tgbotapi.Message)

// adminOnly wraps a command handler with an admin check. Admins are matched
// by telegram id, not username: usernames change, ids do not.
func (a *App) adminOnly(handler commandHandlerFunc) commandHandlerFunc {
	return func(msg *tgbotapi.Message) {
		if !a.cfg.IsAdmin(int64(msg.From.ID)) {
			a.sendText(msg.Chat.ID, "Эта команда доступна только организаторам.")
			return
		}
		handler(msg)
	}
}
