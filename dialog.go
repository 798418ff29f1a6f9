package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// paidButton is the acknowledgment that moves a session from awaiting
// payment to awaiting the receipt.
const paidButton = "✅ Я оплатил(а)"

// Notifier delivers one outbound text message. Delivery failures are the
// caller's problem to log and skip, never to propagate.
type Notifier interface {
	Send(chatID int64, text string) error
}

// Reply is what the state machine wants sent back to the user.
type Reply struct {
	Text           string
	Options        []string // rendered as a one-time reply keyboard
	RemoveKeyboard bool
}

// SessionManager owns the per-user conversation sessions.
type SessionManager struct {
	sessions map[int64]*Session
	mu       sync.RWMutex
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[int64]*Session)}
}

// Start creates a fresh session for the user, discarding any prior one so no
// partial answers leak into the new attempt.
func (sm *SessionManager) Start(telegramID int64, username string, first StepID) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s := &Session{
		TelegramID: telegramID,
		Username:   username,
		Current:    first,
		Answers:    make(map[StepID]string),
	}
	sm.sessions[telegramID] = s
	return s
}

func (sm *SessionManager) Get(telegramID int64) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[telegramID]
	return s, ok
}

func (sm *SessionManager) Clear(telegramID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, telegramID)
}

// Engine drives registrants through the questionnaire and into the record
// store. It knows nothing about Telegram beyond the Notifier.
type Engine struct {
	q        *Questionnaire
	sessions *SessionManager
	repo     Repository
	notify   Notifier
	cfg      *Config
}

func NewEngine(cfg *Config, repo Repository, notify Notifier) *Engine {
	return &Engine{
		q:        NewQuestionnaire(cfg),
		sessions: NewSessionManager(),
		repo:     repo,
		notify:   notify,
		cfg:      cfg,
	}
}

// Start begins (or restarts) the conversation for a user and returns the
// welcome message with the first question.
func (e *Engine) Start(telegramID int64, username string) Reply {
	first := e.q.First()
	e.sessions.Start(telegramID, username, first.ID)

	text := fmt.Sprintf(
		"Привет, делегат! Чтобы попасть на %s, нужно заполнить заявку и оплатить взнос %d руб.\n\n%s",
		e.cfg.EventName, e.cfg.Fee, first.Prompt)
	return Reply{Text: text, Options: first.Options, RemoveKeyboard: len(first.Options) == 0}
}

// HandleText processes one inbound text answer. The second return value is
// false when the user has no session; the transport decides what to do then.
func (e *Engine) HandleText(telegramID int64, text string) (Reply, bool) {
	sess, ok := e.sessions.Get(telegramID)
	if !ok {
		return Reply{}, false
	}

	switch sess.Current {
	case StateAwaitingPayment:
		if text == paidButton {
			sess.Current = StateAwaitingReceipt
			return Reply{
				Text:           "Спасибо! Теперь пришли чек об оплате в чат (фото или файл).",
				RemoveKeyboard: true,
			}, true
		}
		return e.paymentReply(sess), true

	case StateAwaitingReceipt:
		return Reply{Text: "Жду чек об оплате — пришли его фото или файлом."}, true
	}

	step, ok := e.q.Step(sess.Current)
	if !ok {
		// Corrupt cursor; restart is the only sane recovery.
		log.Error().Int64("user", telegramID).Str("step", string(sess.Current)).Msg("session points at unknown step")
		return e.Start(telegramID, sess.Username), true
	}

	answer, err := e.q.Validate(step, text)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return Reply{
				Text:    verr.Message + "\n\n" + step.Prompt,
				Options: step.Options,
			}, true
		}
		log.Error().Err(err).Int64("user", telegramID).Msg("step validation failed")
		return Reply{Text: "Что-то пошло не так, попробуй ещё раз."}, true
	}

	sess.Answers[step.ID] = answer

	next := step.Next(answer)
	if next == stepDone {
		return e.finalize(sess), true
	}

	nextStep, ok := e.q.Step(next)
	if !ok {
		log.Error().Str("from", string(step.ID)).Str("to", string(next)).Msg("step table resolves to unknown step")
		return Reply{Text: "Что-то пошло не так, попробуй /start."}, true
	}
	sess.Current = nextStep.ID
	return Reply{Text: nextStep.Prompt, Options: nextStep.Options, RemoveKeyboard: len(nextStep.Options) == 0}, true
}

// finalize converts the session into a Registrant, persists it and moves the
// session to the awaiting-payment pseudo-state.
func (e *Engine) finalize(sess *Session) Reply {
	answers := make(map[StepID]string, len(sess.Answers))
	for k, v := range sess.Answers {
		answers[k] = v
	}
	reg := Registrant{
		TelegramID: sess.TelegramID,
		Username:   sess.Username,
		Answers:    answers,
		Status:     StatusAwaitingPayment,
		CreatedAt:  time.Now(),
	}

	if err := e.repo.Append(reg); err != nil {
		log.Error().Err(err).Int64("user", sess.TelegramID).Msg("saving registration failed")
		// Stay on the last step so a repeated answer retries the write.
		return Reply{Text: "Не получилось сохранить заявку, попробуй отправить ответ ещё раз."}
	}

	log.Info().Int64("user", sess.TelegramID).Str("name", answers[StepFullName]).Msg("registration completed")
	e.notifyAdmins(fmt.Sprintf("🆕 Новая заявка: %s (%s)\nID: %d\nПодтвердить после оплаты: /confirm %d",
		answers[StepFullName], answers[StepCommittee], sess.TelegramID, sess.TelegramID))

	sess.Current = StateAwaitingPayment
	return e.paymentReply(sess)
}

// paymentReply renders the fee, the requisites for the user's committee and
// the "I have paid" button.
func (e *Engine) paymentReply(sess *Session) Reply {
	requisites := e.cfg.RequisitesFor(sess.Answers[StepCommittee])
	text := fmt.Sprintf(
		"Оплата взноса — %d руб.\n\nПереведи по реквизитам:\n%s\n\nОБЯЗАТЕЛЬНО укажи в комментарии перевода ФИО как в заявке.\n\nПосле перевода нажми кнопку ниже.",
		e.cfg.Fee, requisites)
	return Reply{Text: text, Options: []string{paidButton}}
}

// HandleReceipt processes an attachment-bearing message: marks the record as
// pending admin review, reports the admin-side note to forward along with the
// attachment, and destroys the session. Only sessions in one of the payment
// pseudo-states accept receipts.
func (e *Engine) HandleReceipt(telegramID int64) (reply Reply, adminNote string, ok bool) {
	sess, found := e.sessions.Get(telegramID)
	if !found || (sess.Current != StateAwaitingPayment && sess.Current != StateAwaitingReceipt) {
		return Reply{}, "", false
	}

	updated, err := e.repo.UpdateStatus(telegramID, StatusPendingReview)
	if err != nil {
		log.Error().Err(err).Int64("user", telegramID).Msg("marking receipt failed")
	} else if !updated {
		log.Warn().Int64("user", telegramID).Msg("receipt for unknown record")
	}

	adminNote = fmt.Sprintf("📩 Чек от %s (@%s)\nID: %d\nПодтвердить: /confirm %d",
		sess.Answers[StepFullName], sess.Username, telegramID, telegramID)

	e.sessions.Clear(telegramID)
	return Reply{
		Text:           "✅ Чек получен и передан организаторам на проверку. После подтверждения придёт сообщение.",
		RemoveKeyboard: true,
	}, adminNote, true
}

// notifyAdmins is fire-and-forget: one blocked admin must not hide the
// notification from the rest.
func (e *Engine) notifyAdmins(text string) {
	for _, adminID := range e.cfg.AdminIDs {
		if err := e.notify.Send(adminID, text); err != nil {
			log.Error().Err(err).Int64("admin", adminID).Msg("admin notification failed")
		}
	}
}
