package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser int64 = 42

func newTestEngine() (*Engine, *fakeRepo, *recordingNotifier) {
	repo := newFakeRepo()
	notify := newRecordingNotifier()
	return NewEngine(testConfig(), repo, notify), repo, notify
}

// answer feeds one text message and requires the session to still exist.
func answer(t *testing.T, e *Engine, text string) Reply {
	t.Helper()
	reply, handled := e.HandleText(testUser, text)
	require.True(t, handled)
	return reply
}

// completeRegistration walks the whole questionnaire on the "no document"
// path.
func completeRegistration(t *testing.T, e *Engine, fullName string) Reply {
	t.Helper()
	e.Start(testUser, "ivan")
	answer(t, e, fullName)
	answer(t, e, "01.02.2000")
	answer(t, e, "Kazan")
	answer(t, e, "нет")
	answer(t, e, "нет")
	answer(t, e, "Нет")
	answer(t, e, "Да")
	return answer(t, e, "20.12.2025")
}

func TestStartGreeting(t *testing.T) {
	e, _, _ := newTestEngine()

	reply := e.Start(testUser, "ivan")

	assert.True(t, strings.HasPrefix(reply.Text, "Привет, делегат!"), "greeting addresses the delegate, not the event")
	assert.Contains(t, reply.Text, "Nat'co 26")
	assert.Contains(t, reply.Text, "1500")
	assert.Contains(t, reply.Text, "ФИО")
}

func TestCompleteRegistration(t *testing.T) {
	e, repo, notify := newTestEngine()

	reply := completeRegistration(t, e, "Иванов Иван")
	assert.Contains(t, reply.Text, "1500")
	assert.Contains(t, reply.Text, "СБЕРБАНК", "Kazan pays to the second requisites group")
	assert.Equal(t, []string{paidButton}, reply.Options)

	reg, err := repo.Get(testUser)
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.Equal(t, StatusAwaitingPayment, reg.Status)
	assert.Equal(t, "Иванов Иван", reg.Answers[StepFullName])
	assert.Equal(t, "Kazan", reg.Answers[StepCommittee])
	assert.Equal(t, "нет", reg.Answers[StepNeedsDocument])
	_, hasInstitution := reg.Answers[StepInstitution]
	assert.False(t, hasInstitution, "unreached branch must leave no answer")

	require.Len(t, notify.sent[900], 1, "admin is told about the new registration")
	assert.Contains(t, notify.sent[900][0], "/confirm 42")
}

func TestDocumentBranchCollectsInstitution(t *testing.T) {
	e, repo, _ := newTestEngine()

	e.Start(testUser, "ivan")
	answer(t, e, "Петров Пётр")
	answer(t, e, "03.04.2001")
	answer(t, e, "Moscow")
	answer(t, e, "нет")
	answer(t, e, "нет")
	reply := answer(t, e, "Да")
	assert.Contains(t, reply.Text, "учебного заведения")
	answer(t, e, "НИУ ВШЭ")
	answer(t, e, "Нет")
	answer(t, e, "15.12.2025")

	reg, _ := repo.Get(testUser)
	require.NotNil(t, reg)
	assert.Equal(t, "НИУ ВШЭ", reg.Answers[StepInstitution])
}

func TestInvalidInputDoesNotAdvance(t *testing.T) {
	e, _, _ := newTestEngine()

	e.Start(testUser, "ivan")
	answer(t, e, "Иванов Иван")

	// Bad calendar date: re-prompted, still on birth_date.
	reply := answer(t, e, "31.02.2026")
	assert.Contains(t, reply.Text, "ДД.ММ.ГГГГ")

	sess, ok := e.sessions.Get(testUser)
	require.True(t, ok)
	assert.Equal(t, StepBirthDate, sess.Current)

	// A valid date then advances to the committee choice.
	reply = answer(t, e, "01.02.2000")
	assert.Equal(t, testConfig().Committees, reply.Options)
}

func TestPayDateDeadlineEnforced(t *testing.T) {
	e, _, _ := newTestEngine()

	e.Start(testUser, "ivan")
	answer(t, e, "Иванов Иван")
	answer(t, e, "01.02.2000")
	answer(t, e, "Kazan")
	answer(t, e, "нет")
	answer(t, e, "нет")
	answer(t, e, "Нет")
	answer(t, e, "Да")

	reply := answer(t, e, "25.12.2025")
	assert.Contains(t, reply.Text, "дедлайна")
	sess, _ := e.sessions.Get(testUser)
	assert.Equal(t, StepPayDate, sess.Current)

	answer(t, e, "21.12.2025")
	sess, _ = e.sessions.Get(testUser)
	assert.Equal(t, StateAwaitingPayment, sess.Current, "deadline day itself is accepted")
}

func TestRestartDiscardsPartialAnswers(t *testing.T) {
	e, repo, _ := newTestEngine()

	// First attempt gets halfway, including the institution branch.
	e.Start(testUser, "ivan")
	answer(t, e, "Первый Вариант")
	answer(t, e, "01.02.2000")
	answer(t, e, "Moscow")
	answer(t, e, "нет")
	answer(t, e, "нет")
	answer(t, e, "Да")
	answer(t, e, "Старый ВУЗ")

	// Restart and complete on the no-document path.
	completeRegistration(t, e, "Второй Вариант")

	reg, _ := repo.Get(testUser)
	require.NotNil(t, reg)
	assert.Equal(t, "Второй Вариант", reg.Answers[StepFullName])
	_, hasInstitution := reg.Answers[StepInstitution]
	assert.False(t, hasInstitution, "first attempt's institution must not bleed through")
}

func TestReRegistrationOverwrites(t *testing.T) {
	e, repo, _ := newTestEngine()

	completeRegistration(t, e, "Иванов Иван")
	completeRegistration(t, e, "Иванов И. И.")

	regs, _ := repo.Scan()
	require.Len(t, regs, 1, "one live record per telegram id")
	assert.Equal(t, "Иванов И. И.", regs[0].Answers[StepFullName])
}

func TestPaidAndReceiptFlow(t *testing.T) {
	e, repo, _ := newTestEngine()
	completeRegistration(t, e, "Иванов Иван")

	// Random text while awaiting payment re-prompts the requisites.
	reply := answer(t, e, "а когда дедлайн?")
	assert.Contains(t, reply.Text, "Оплата взноса")

	reply = answer(t, e, paidButton)
	assert.Contains(t, reply.Text, "чек")
	sess, _ := e.sessions.Get(testUser)
	assert.Equal(t, StateAwaitingReceipt, sess.Current)

	userReply, adminNote, ok := e.HandleReceipt(testUser)
	require.True(t, ok)
	assert.Contains(t, userReply.Text, "передан")
	assert.Contains(t, adminNote, "/confirm 42")

	reg, _ := repo.Get(testUser)
	assert.Equal(t, StatusPendingReview, reg.Status)

	// Session is destroyed: further texts fall through to the transport.
	_, handled := e.HandleText(testUser, "что-то ещё")
	assert.False(t, handled)
}

func TestReceiptWithoutQuestionnaireIgnored(t *testing.T) {
	e, _, _ := newTestEngine()

	_, _, ok := e.HandleReceipt(testUser)
	assert.False(t, ok, "no session, nothing to attach a receipt to")

	// Mid-questionnaire attachments are not receipts either.
	e.Start(testUser, "ivan")
	_, _, ok = e.HandleReceipt(testUser)
	assert.False(t, ok)
}

func TestReceiptAcceptedWithoutPaidButton(t *testing.T) {
	e, repo, _ := newTestEngine()
	completeRegistration(t, e, "Иванов Иван")

	// Users skip the button and just send the receipt; accept it.
	_, _, ok := e.HandleReceipt(testUser)
	require.True(t, ok)
	reg, _ := repo.Get(testUser)
	assert.Equal(t, StatusPendingReview, reg.Status)
}

func TestTextWithoutSessionNotHandled(t *testing.T) {
	e, _, _ := newTestEngine()
	_, handled := e.HandleText(testUser, "привет")
	assert.False(t, handled)
}
