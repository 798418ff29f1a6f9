package main

import "time"

// Status is the payment lifecycle label of a registrant record.
type Status string

const (
	StatusAwaitingPayment Status = "awaiting_payment" // registered, fee not paid
	StatusPendingReview   Status = "pending_review"   // receipt forwarded, waiting for admin
	StatusConfirmed       Status = "confirmed"
	StatusRejected        Status = "rejected"
)

// Glyph returns the marker used in the /list roster.
func (s Status) Glyph() string {
	switch s {
	case StatusConfirmed:
		return "✅"
	case StatusPendingReview:
		return "🕓"
	case StatusRejected:
		return "❌"
	default:
		return "⏳"
	}
}

// Registrant represents a completed registration record.
type Registrant struct {
	TelegramID int64             // TelegramID is the unique identifier for the user on Telegram.
	Username   string            // Username is the user's Telegram username ("N/A" when hidden).
	Answers    map[StepID]string // Answers holds one entry per questionnaire step the user reached.
	Status     Status            // Status is the payment lifecycle label.
	CreatedAt  time.Time         // CreatedAt is when the questionnaire was completed.
}

// Session is the in-progress conversation state for one user. It lives in
// memory only; a finished session becomes a Registrant.
type Session struct {
	TelegramID int64
	Username   string
	Current    StepID            // current question or one of the payment pseudo-states
	Answers    map[StepID]string // partial answer mapping, built step by step
}
