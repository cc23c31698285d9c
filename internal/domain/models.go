package domain

import "time"

// AnonymousViewer is the viewer ID used when no identity is available.
// Nothing is persisted for anonymous viewers.
const AnonymousViewer = "anonymous"

// VideoRef is the playable media for a session.
type VideoRef struct {
	ID           string  `json:"id" validate:"required"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	URL          string  `json:"url" validate:"required"`
	ThumbnailURL string  `json:"thumbnailUrl"`
	Duration     float64 `json:"duration" validate:"gt=0"` // seconds
}

// Question is a multiple-choice prompt anchored to a playback position.
// Questions are read-only once loaded.
type Question struct {
	ID           string   `json:"id" validate:"required"`
	VideoID      string   `json:"videoId" validate:"required"`
	Timestamp    float64  `json:"timestamp" validate:"gte=0"` // trigger position in seconds
	Prompt       string   `json:"question" validate:"required"`
	Options      []string `json:"options" validate:"min=2,dive,required"`
	CorrectIndex int      `json:"correctAnswer" validate:"gte=0"`
}

// IsCorrect reports whether option index i is the correct answer.
func (q Question) IsCorrect(i int) bool {
	return i == q.CorrectIndex
}

// ProgressRecord is the resume point of one viewer on one video.
// There is one logical record per (ViewerID, VideoID).
type ProgressRecord struct {
	ViewerID      string    `json:"viewerId"`
	VideoID       string    `json:"videoId"`
	Fraction      float64   `json:"progress"`
	WatchTime     int       `json:"watchTime"` // seconds
	LastWatchedAt time.Time `json:"lastWatchedAt"`
}

// QuizResultRecord is the append-only outcome of one answered question.
type QuizResultRecord struct {
	ID             string    `json:"id"`
	ViewerID       string    `json:"viewerId"`
	VideoID        string    `json:"videoId"`
	QuestionID     string    `json:"questionId"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Phase is the lifecycle stage of a question presentation.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseAsked    Phase = "asked"
	PhaseFeedback Phase = "feedbackShown"
)

// ActiveQuestion is the transient view of the question currently on screen.
type ActiveQuestion struct {
	Question Question  `json:"question"`
	Selected *int      `json:"selected,omitempty"`
	Phase    Phase     `json:"phase"`
	FiredAt  time.Time `json:"firedAt"`
}

// SessionData is everything a playback session needs to start.
type SessionData struct {
	Video     VideoRef
	Questions []Question
	Progress  *ProgressRecord // nil when the viewer has no prior progress
}

// PlayerState is a snapshot of the playback clock.
type PlayerState struct {
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
	Playing     bool    `json:"playing"`
	Volume      float64 `json:"volume"`
	Muted       bool    `json:"muted"`
}

// SessionSnapshot is the client-facing view of a playback session.
type SessionSnapshot struct {
	SessionID string          `json:"sessionId"`
	ViewerID  string          `json:"viewerId"`
	Video     VideoRef        `json:"video"`
	Player    PlayerState     `json:"player"`
	Progress  float64         `json:"progress"`
	Active    *ActiveQuestion `json:"active,omitempty"`
	Questions int             `json:"questions"`
}

// ViewerSummary aggregates a viewer's progress and quiz records.
type ViewerSummary struct {
	ViewerID       string  `json:"viewerId"`
	TotalWatchTime int     `json:"totalWatchTime"`
	VideosWatched  int     `json:"videosWatched"`
	AverageScore   float64 `json:"averageScore"`
	CompletionRate float64 `json:"completionRate"`
}
