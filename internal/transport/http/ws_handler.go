package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"interactive-video-service/internal/app"
	"interactive-video-service/internal/domain"
	"interactive-video-service/internal/identity"
)

type WSHandler struct {
	service  *app.PlaybackService
	ids      identity.Provider
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.PlaybackService, ids identity.Provider, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		ids:     ids,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type seekPayload struct {
	Seconds float64 `json:"seconds"`
}

type volumePayload struct {
	Volume float64 `json:"volume"`
}

type mutePayload struct {
	Muted bool `json:"muted"`
}

type answerPayload struct {
	OptionIndex *int `json:"optionIndex"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// questionView is a question as the viewer sees it, without the answer.
type questionView struct {
	ID        string   `json:"id"`
	Timestamp float64  `json:"timestamp"`
	Prompt    string   `json:"question"`
	Options   []string `json:"options"`
}

type activeView struct {
	Question questionView `json:"question"`
	Selected *int         `json:"selected,omitempty"`
	Phase    domain.Phase `json:"phase"`
}

type sessionView struct {
	SessionID string             `json:"sessionId"`
	ViewerID  string             `json:"viewerId"`
	Video     domain.VideoRef    `json:"video"`
	Player    domain.PlayerState `json:"player"`
	Progress  float64            `json:"progress"`
	Active    *activeView        `json:"active,omitempty"`
	Questions int                `json:"questions"`
}

type eventView struct {
	Player   domain.PlayerState `json:"player"`
	Progress float64            `json:"progress"`
	Question *questionView      `json:"question,omitempty"`
	Feedback *domain.Feedback   `json:"feedback,omitempty"`
}

// ServeWS upgrades HTTP requests to websockets and drives one playback
// session per connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	videoID := r.URL.Query().Get("videoId")
	if videoID == "" {
		http.Error(w, "missing videoId", http.StatusBadRequest)
		return
	}
	viewerID, err := h.ids.ViewerID(r)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	session, err := h.service.Open(r.Context(), videoID, viewerID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: toErrorPayload(err)})
		return
	}
	defer h.service.Close(session.ID())

	updates, cancel := session.Subscribe()
	defer cancel()
	snapshot, err := session.Snapshot(r.Context())
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: toErrorPayload(err)})
		return
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	enqueue := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	// Only the writer goroutine touches conn for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write failed", zap.String("sessionId", session.ID()), zap.Error(err))
				return
			}
		}
	}()

	// The snapshot goes first; events raised meanwhile wait in the subscription.
	enqueue(outboundMessage[any]{Type: "session", Payload: toSessionView(snapshot)})

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					enqueue(outboundMessage[any]{Type: string(domain.EventClosed), Payload: struct{}{}})
					return
				}
				select {
				case send <- toEventMessage(ev):
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := dispatch(r.Context(), session, inbound); err != nil {
			if !enqueue(outboundMessage[any]{Type: "error", Payload: toErrorPayload(err)}) {
				break
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

var errUnsupported = errors.New("unsupported message type")

func dispatch(ctx context.Context, session *app.Session, msg inboundMessage) error {
	switch msg.Type {
	case "play":
		return session.Play(ctx)
	case "pause":
		return session.Pause(ctx)
	case "seek":
		var p seekPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		return session.Seek(ctx, p.Seconds)
	case "volume":
		var p volumePayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		return session.SetVolume(ctx, p.Volume)
	case "mute":
		var p mutePayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		return session.SetMuted(ctx, p.Muted)
	case "replay":
		return session.Replay(ctx)
	case "answer":
		var p answerPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		if p.OptionIndex == nil {
			return errBadPayload
		}
		return session.Answer(ctx, *p.OptionIndex)
	default:
		return errUnsupported
	}
}

var errBadPayload = errors.New("invalid payload")

func decodePayload(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return errBadPayload
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errBadPayload
	}
	return nil
}

func toEventMessage(ev domain.Event) outboundMessage[any] {
	view := eventView{
		Player:   ev.Player,
		Progress: ev.Progress,
		Feedback: ev.Feedback,
	}
	if ev.Question != nil {
		q := toQuestionView(*ev.Question)
		view.Question = &q
	}
	return outboundMessage[any]{Type: string(ev.Type), Payload: view}
}

func toSessionView(s domain.SessionSnapshot) sessionView {
	view := sessionView{
		SessionID: s.SessionID,
		ViewerID:  s.ViewerID,
		Video:     s.Video,
		Player:    s.Player,
		Progress:  s.Progress,
		Questions: s.Questions,
	}
	if s.Active != nil {
		view.Active = &activeView{
			Question: toQuestionView(s.Active.Question),
			Selected: s.Active.Selected,
			Phase:    s.Active.Phase,
		}
	}
	return view
}

func toQuestionView(q domain.Question) questionView {
	return questionView{ID: q.ID, Timestamp: q.Timestamp, Prompt: q.Prompt, Options: q.Options}
}

func toErrorPayload(err error) errorPayload {
	code := "internal"
	switch {
	case errors.Is(err, domain.ErrVideoNotFound):
		code = "notFound"
	case errors.Is(err, domain.ErrSessionClosed):
		code = "closed"
	case errors.Is(err, domain.ErrNoActiveQuestion):
		code = "noActiveQuestion"
	case errors.Is(err, domain.ErrAlreadyAnswered):
		code = "alreadyAnswered"
	case errors.Is(err, domain.ErrInvalidOption):
		code = "invalidOption"
	case errors.Is(err, domain.ErrQuestionActive):
		code = "questionActive"
	case errors.Is(err, domain.ErrUnauthorized):
		code = "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		code = "forbidden"
	case errors.Is(err, errBadPayload), errors.Is(err, errUnsupported):
		code = "badRequest"
	}
	return errorPayload{Code: code, Message: err.Error()}
}
