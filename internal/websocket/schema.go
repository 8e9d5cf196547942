package websocket

import (
	"slices"

	"github.com/stemsi/exstem-assessment/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect Action = "select"
	ActionFlag   Action = "flag"
	ActionNext   Action = "next"
	ActionPrev   Action = "prev"
	ActionGoTo   Action = "goto"
	ActionSubmit Action = "submit"
	ActionState  Action = "state"
	ActionPing   Action = "ping"
)

// Request is every client frame. Which fields are required depends on Action.
type Request struct {
	Action   Action `json:"action" binding:"required,oneof=select flag next prev goto submit state ping"`
	QID      string `json:"q_id" binding:"required_if=Action select,required_if=Action flag,max=64"`
	OptionID string `json:"option_id" binding:"required_if=Action select,max=10"`
	Index    *int   `json:"index" binding:"required_if=Action goto,omitempty,min=0"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState   Event = "state"
	EventTick    Event = "tick"
	EventGraded  Event = "graded"
	EventWarning Event = "warning"
	EventError   Event = "error"
	EventPong    Event = "pong"
)

// QuestionView is the question on screen, without its correct answer.
type QuestionView struct {
	ID      string           `json:"id"`
	Text    string           `json:"text"`
	Options []session.Option `json:"options"`
	Flagged bool             `json:"flagged"`
}

// StateResponse carries the full session snapshot.
type StateResponse struct {
	Event    Event         `json:"event"`
	Title    string        `json:"title"`
	Subject  string        `json:"subject"`
	State    session.State `json:"state"`
	Question QuestionView  `json:"question"`
}

type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
	LowTime          bool  `json:"low_time"`
}

type GradedResponse struct {
	Event         Event             `json:"event"`
	Score         int               `json:"score"`
	Correct       int               `json:"correct"`
	Total         int               `json:"total"`
	AutoSubmitted bool              `json:"auto_submitted"`
	Outcomes      []session.Outcome `json:"outcomes"`
}

type WarningResponse struct {
	Event   Event  `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// NewStateResponse renders sess for the client.
func NewStateResponse(sess *session.Session) StateResponse {
	a := sess.Assessment()
	st := sess.Snapshot()
	q := a.Questions[st.CurrentIndex]
	return StateResponse{
		Event:   EventState,
		Title:   a.Title,
		Subject: a.Subject,
		State:   st,
		Question: QuestionView{
			ID:      q.ID,
			Text:    q.Text,
			Options: q.Options,
			Flagged: slices.Contains(st.Flagged, q.ID),
		},
	}
}

// NewGradedResponse renders a submitted result.
func NewGradedResponse(res session.Result) GradedResponse {
	return GradedResponse{
		Event:         EventGraded,
		Score:         res.Score,
		Correct:       res.Correct,
		Total:         res.Total,
		AutoSubmitted: res.AutoSubmitted,
		Outcomes:      res.Outcomes(),
	}
}
