package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

// App is the application context every handler works through: no
// package-level bot, store or session globals.
type App struct {
	bot      *tgbotapi.BotAPI
	repo     Repository
	cfg      *Config
	engine   *Engine
	reminder *Reminder
}

func NewApp(bot *tgbotapi.BotAPI, repo Repository, cfg *Config) *App {
	notify := &telegramNotifier{bot: bot}
	return &App{
		bot:      bot,
		repo:     repo,
		cfg:      cfg,
		engine:   NewEngine(cfg, repo, notify),
		reminder: NewReminder(cfg, repo, notify),
	}
}

// telegramNotifier adapts the bot API to the Notifier interface the core
// depends on.
type telegramNotifier struct {
	bot *tgbotapi.BotAPI
}

func (n *telegramNotifier) Send(chatID int64, text string) error {
	_, err := n.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// HandleUpdate routes one inbound update. Updates are processed one at a
// time by the polling loop, so handlers never race each other.
func (a *App) HandleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	if msg.IsCommand() {
		a.handleCommand(msg)
		return
	}

	if hasAttachment(msg) {
		a.handleReceipt(msg)
		return
	}

	reply, handled := a.engine.HandleText(int64(msg.From.ID), msg.Text)
	if !handled {
		a.sendText(msg.Chat.ID, "Чтобы подать заявку, отправь /start.")
		return
	}
	a.sendReply(msg.Chat.ID, reply)
}

// handleCommand routes commands to corresponding handlers.
func (a *App) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		a.handleStart(msg)
	case "help":
		a.sendText(msg.Chat.ID,
			"/start — заполнить заявку заново\n/help — это сообщение\n\nВопросы по оплате — организаторам.")
	case "admin":
		a.adminOnly(a.handleAdminHelp)(msg)
	case "list":
		a.adminOnly(a.handleList)(msg)
	case "confirm":
		a.adminOnly(a.handleConfirm)(msg)
	case "reject":
		a.adminOnly(a.handleReject)(msg)
	case "delete":
		a.adminOnly(a.handleDelete)(msg)
	case "export":
		a.adminOnly(a.handleExport)(msg)
	case "broadcast":
		a.adminOnly(a.handleBroadcast)(msg)
	case "remind":
		a.adminOnly(a.handleRemind)(msg)
	case "qrcode":
		a.adminOnly(a.handleQRCode)(msg)
	default:
		a.sendText(msg.Chat.ID, "Неизвестная команда. Используй /start или /help.")
	}
}

func (a *App) handleStart(msg *tgbotapi.Message) {
	username := msg.From.UserName
	if username == "" {
		username = "N/A"
	}
	reply := a.engine.Start(int64(msg.From.ID), username)
	a.sendReply(msg.Chat.ID, reply)
}

// handleReceipt forwards an attachment-bearing message to the admins as
// proof of payment.
func (a *App) handleReceipt(msg *tgbotapi.Message) {
	userID := int64(msg.From.ID)
	reply, adminNote, ok := a.engine.HandleReceipt(userID)
	if !ok {
		a.sendText(msg.Chat.ID, "Сначала заполни заявку: /start")
		return
	}

	for _, adminID := range a.cfg.AdminIDs {
		if _, err := a.bot.Send(tgbotapi.NewMessage(adminID, adminNote)); err != nil {
			log.Error().Err(err).Int64("admin", adminID).Msg("sending receipt note failed")
			continue
		}
		forward := tgbotapi.NewForward(adminID, msg.Chat.ID, msg.MessageID)
		if _, err := a.bot.Send(forward); err != nil {
			log.Error().Err(err).Int64("admin", adminID).Msg("forwarding receipt failed")
		}
	}

	a.sendReply(msg.Chat.ID, reply)
}

func (a *App) handleAdminHelp(msg *tgbotapi.Message) {
	a.sendText(msg.Chat.ID, `Команды организатора:
/list — список заявок
/confirm <id> — подтвердить оплату
/reject <id> — отклонить оплату
/delete <id> — удалить заявку
/export — выгрузить CSV
/broadcast <текст> — сообщение всем
/remind — запустить напоминания сейчас
/qrcode — QR-код со ссылкой на бота`)
}

func (a *App) handleList(msg *tgbotapi.Message) {
	regs, err := a.repo.Scan()
	if err != nil {
		a.sendText(msg.Chat.ID, "Ошибка чтения базы: "+err.Error())
		return
	}
	if len(regs) == 0 {
		a.sendText(msg.Chat.ID, "Заявок пока нет.")
		return
	}
	a.sendText(msg.Chat.ID, formatRoster(regs))
}

// rosterLimit keeps the roster inside one Telegram message (hard cap 4096
// bytes).
const rosterLimit = 4000

// formatRoster renders the admin roster. An oversized roster is cut on a
// line boundary — never mid-rune, Telegram rejects invalid UTF-8 — with a
// tail marker saying how many entries were left out.
func formatRoster(regs []Registrant) string {
	text := fmt.Sprintf("📝 Заявки (%d):\n\n", len(regs))
	for i, reg := range regs {
		line := fmt.Sprintf("%s %s (%s) — %d\n",
			reg.Status.Glyph(), reg.Answers[StepFullName], reg.Answers[StepCommittee], reg.TelegramID)
		tail := fmt.Sprintf("…и ещё %d", len(regs)-i)
		if len(text)+len(line)+len(tail) > rosterLimit {
			return text + tail
		}
		text += line
	}
	return text
}

func (a *App) handleConfirm(msg *tgbotapi.Message) {
	id, ok := a.parseIDArg(msg, "/confirm")
	if !ok {
		return
	}
	found, err := a.repo.UpdateStatus(id, StatusConfirmed)
	if err != nil {
		a.sendText(msg.Chat.ID, "Ошибка обновления статуса: "+err.Error())
		return
	}
	if !found {
		a.sendText(msg.Chat.ID, fmt.Sprintf("Заявка с ID %d не найдена.", id))
		return
	}
	if _, err := a.bot.Send(tgbotapi.NewMessage(id, "✨ Твоя оплата подтверждена! До встречи на конференции!")); err != nil {
		log.Error().Err(err).Int64("user", id).Msg("confirmation notice failed")
	}
	a.sendText(msg.Chat.ID, fmt.Sprintf("✅ Оплата подтверждена для %d.", id))
}

func (a *App) handleReject(msg *tgbotapi.Message) {
	id, ok := a.parseIDArg(msg, "/reject")
	if !ok {
		return
	}
	found, err := a.repo.UpdateStatus(id, StatusRejected)
	if err != nil {
		a.sendText(msg.Chat.ID, "Ошибка обновления статуса: "+err.Error())
		return
	}
	if !found {
		a.sendText(msg.Chat.ID, fmt.Sprintf("Заявка с ID %d не найдена.", id))
		return
	}
	if _, err := a.bot.Send(tgbotapi.NewMessage(id, "К сожалению, оплату не удалось подтвердить. Свяжись с организаторами.")); err != nil {
		log.Error().Err(err).Int64("user", id).Msg("rejection notice failed")
	}
	a.sendText(msg.Chat.ID, fmt.Sprintf("❌ Оплата отклонена для %d.", id))
}

func (a *App) handleDelete(msg *tgbotapi.Message) {
	id, ok := a.parseIDArg(msg, "/delete")
	if !ok {
		return
	}
	found, err := a.repo.Delete(id)
	if err != nil {
		a.sendText(msg.Chat.ID, "Ошибка удаления: "+err.Error())
		return
	}
	if !found {
		a.sendText(msg.Chat.ID, fmt.Sprintf("Заявка с ID %d не найдена.", id))
		return
	}
	a.sendText(msg.Chat.ID, fmt.Sprintf("🗑 Заявка %d удалена.", id))
}

// handleExport creates a CSV file with all registrations and sends it to the
// admin.
func (a *App) handleExport(msg *tgbotapi.Message) {
	regs, err := a.repo.Scan()
	if err != nil {
		a.sendText(msg.Chat.ID, "Ошибка получения данных: "+err.Error())
		return
	}
	if len(regs) == 0 {
		a.sendText(msg.Chat.ID, "Заявки отсутствуют.")
		return
	}

	filename := "registrations_export_" + time.Now().Format("20060102_150405") + ".csv"
	file, err := os.Create(filename)
	if err != nil {
		a.sendText(msg.Chat.ID, "Ошибка создания файла: "+err.Error())
		return
	}

	// UTF-8 BOM for Excel compatibility.
	file.WriteString("\xEF\xBB\xBF")

	writer := csv.NewWriter(file)
	header := []string{"ID Telegram", "Имя пользователя", "ФИО", "Дата рождения", "ЛК",
		"Аллергии", "Питание", "Нужна справка", "Учебное заведение", "Согласие на фото",
		"Оплатит до", "Статус", "Дата заявки"}
	if err := writer.Write(header); err != nil {
		file.Close()
		a.sendText(msg.Chat.ID, "Ошибка записи CSV: "+err.Error())
		return
	}

	for _, reg := range regs {
		row := []string{strconv.FormatInt(reg.TelegramID, 10), reg.Username}
		for _, col := range answerColumns {
			row = append(row, reg.Answers[col])
		}
		row = append(row, string(reg.Status), reg.CreatedAt.Format("02.01.2006 15:04"))
		if err := writer.Write(row); err != nil {
			file.Close()
			a.sendText(msg.Chat.ID, "Ошибка записи CSV: "+err.Error())
			return
		}
	}

	writer.Flush()
	file.Close()

	fileBytes, err := os.ReadFile(filename)
	if err != nil {
		a.sendText(msg.Chat.ID, "Ошибка чтения файла: "+err.Error())
		return
	}

	doc := tgbotapi.NewDocumentUpload(msg.Chat.ID, tgbotapi.FileBytes{Name: filename, Bytes: fileBytes})
	doc.Caption = fmt.Sprintf("Экспорт заявок (%d записей)", len(regs))
	if _, err := a.bot.Send(doc); err != nil {
		a.sendText(msg.Chat.ID, "Ошибка отправки файла: "+err.Error())
	}

	os.Remove(filename)
}

func (a *App) handleBroadcast(msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.CommandArguments())
	if text == "" {
		a.sendText(msg.Chat.ID, "Использование: /broadcast <текст сообщения>")
		return
	}

	regs, err := a.repo.Scan()
	if err != nil {
		a.sendText(msg.Chat.ID, "Ошибка чтения базы: "+err.Error())
		return
	}

	ids := make([]int64, 0, len(regs))
	for _, reg := range regs {
		ids = append(ids, reg.TelegramID)
	}
	sent := fanOut(&telegramNotifier{bot: a.bot}, ids, text, dispatchDelay)
	a.sendText(msg.Chat.ID, fmt.Sprintf("📢 Отправлено: %d из %d", sent, len(ids)))
}

func (a *App) handleRemind(msg *tgbotapi.Message) {
	sent := a.reminder.Sweep(time.Now())
	a.sendText(msg.Chat.ID, fmt.Sprintf("Напоминаний отправлено: %d", sent))
}

// handleQRCode generates a QR code with a deep link to the bot for printing
// on posters.
func (a *App) handleQRCode(msg *tgbotapi.Message) {
	if a.cfg.BotLink == "" {
		a.sendText(msg.Chat.ID, "BOT_LINK не настроен.")
		return
	}
	qrFile := "qrcode_registration.png"
	if err := qrcode.WriteFile(a.cfg.BotLink, qrcode.Medium, 256, qrFile); err != nil {
		a.sendText(msg.Chat.ID, "Ошибка генерации QR-кода: "+err.Error())
		return
	}
	photo := tgbotapi.NewPhotoUpload(msg.Chat.ID, qrFile)
	photo.Caption = "QR-код для регистрации на " + a.cfg.EventName
	if _, err := a.bot.Send(photo); err != nil {
		log.Error().Err(err).Msg("sending qr code failed")
	}
	os.Remove(qrFile)
}

func (a *App) parseIDArg(msg *tgbotapi.Message, usage string) (int64, bool) {
	arg := strings.TrimSpace(msg.CommandArguments())
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		a.sendText(msg.Chat.ID, "Использование: "+usage+" <telegram id>")
		return 0, false
	}
	return id, true
}

// sendReply renders an engine Reply, attaching a one-time keyboard when the
// step has options.
func (a *App) sendReply(chatID int64, reply Reply) {
	message := tgbotapi.NewMessage(chatID, reply.Text)
	if len(reply.Options) > 0 {
		rows := make([][]tgbotapi.KeyboardButton, 0, len(reply.Options))
		for _, opt := range reply.Options {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(opt)))
		}
		keyboard := tgbotapi.NewReplyKeyboard(rows...)
		keyboard.OneTimeKeyboard = true
		message.ReplyMarkup = keyboard
	} else if reply.RemoveKeyboard {
		message.ReplyMarkup = tgbotapi.ReplyKeyboardRemove{RemoveKeyboard: true}
	}
	if _, err := a.bot.Send(message); err != nil {
		log.Error().Err(err).Int64("chat", chatID).Msg("sending reply failed")
	}
}

// sendText sends a plain text message to the given chat.
func (a *App) sendText(chatID int64, text string) {
	if _, err := a.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Error().Err(err).Int64("chat", chatID).Msg("sending message failed")
	}
}

func hasAttachment(msg *tgbotapi.Message) bool {
	return msg.Document != nil || (msg.Photo != nil && len(*msg.Photo) > 0)
}
