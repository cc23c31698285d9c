package domain

// EventType names a message pushed to session subscribers.
type EventType string

const (
	EventTick          EventType = "tick"
	EventQuestionAsked EventType = "questionAsked"
	EventFeedback      EventType = "feedback"
	EventResumed       EventType = "resumed"
	EventState         EventType = "state"
	EventClosed        EventType = "closed"
)

// Event is a single session notification. Only the fields relevant to the
// type are set.
type Event struct {
	Type     EventType   `json:"type"`
	Player   PlayerState `json:"player"`
	Progress float64     `json:"progress"`
	Question *Question   `json:"question,omitempty"`
	Feedback *Feedback   `json:"feedback,omitempty"`
}

// Feedback is shown after an answer until playback resumes.
type Feedback struct {
	QuestionID    string `json:"questionId"`
	Selected      int    `json:"selected"`
	CorrectOption int    `json:"correctOption"`
	Correct       bool   `json:"correct"`
	Score         int    `json:"score"`
}
