package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/npezzotti/go-liveqa/internal/database"
	"github.com/npezzotti/go-liveqa/internal/qa"
	"github.com/npezzotti/go-liveqa/internal/types"
)

// inbound events
const (
	EventJoinRoom       = "join-room"
	EventSubmitQuestion = "submit-question"
	EventSubmitVote     = "submit-vote"
	EventMarkAnswered   = "mark-answered"
)

// outbound events
const (
	EventSnapshot        = "snapshot"
	EventQuestionCreated = "question-created"
	EventQuestionUpdated = "question-updated"
	EventSessionEnded    = "session-ended"
	EventRoomClosed      = "room-closed"
	EventError           = "error"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`

	Join     *JoinRoom       `json:"-"`
	Question *SubmitQuestion `json:"-"`
	Vote     *SubmitVote     `json:"-"`
	Answer   *MarkAnswered   `json:"-"`

	client  *Client
	session database.Session
}

type JoinRoom struct {
	Code string `json:"code"`
}

type SubmitQuestion struct {
	SessionId  string        `json:"sessionId"`
	AuthorName string        `json:"authorName"`
	Text       string        `json:"text"`
	Media      []types.Media `json:"media,omitempty"`
}

type SubmitVote struct {
	QuestionId string `json:"questionId"`
	VoterName  string `json:"voterName"`
	Type       string `json:"type"`
}

type MarkAnswered struct {
	QuestionId string `json:"questionId"`
	SessionId  string `json:"sessionId"`
}

// decodeClientMessage parses the envelope and the payload for its event.
// The returned message carries the request id even when the payload is
// rejected so the error can be matched to the request.
func decodeClientMessage(raw []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, qa.ValidationError("invalid message format")
	}

	decode := func(v any) error {
		if len(msg.Data) == 0 || string(msg.Data) == "null" {
			return qa.ValidationError("%s: missing data", msg.Event)
		}
		if err := json.Unmarshal(msg.Data, v); err != nil {
			return qa.ValidationError("%s: invalid data", msg.Event)
		}
		return nil
	}

	switch msg.Event {
	case EventJoinRoom:
		var p JoinRoom
		if err := decode(&p); err != nil {
			return &msg, err
		}
		if !qa.ValidCode(p.Code) {
			return &msg, qa.ValidationError("code must be 6 alphanumeric characters")
		}
		msg.Join = &p
	case EventSubmitQuestion:
		var p SubmitQuestion
		if err := decode(&p); err != nil {
			return &msg, err
		}
		if p.SessionId == "" {
			return &msg, qa.ValidationError("sessionId is required")
		}
		msg.Question = &p
	case EventSubmitVote:
		var p SubmitVote
		if err := decode(&p); err != nil {
			return &msg, err
		}
		if p.QuestionId == "" {
			return &msg, qa.ValidationError("questionId is required")
		}
		if !database.VoteType(p.Type).Valid() {
			return &msg, qa.ValidationError("type must be %q or %q", database.VoteUp, database.VoteDown)
		}
		msg.Vote = &p
	case EventMarkAnswered:
		var p MarkAnswered
		if err := decode(&p); err != nil {
			return &msg, err
		}
		if p.QuestionId == "" || p.SessionId == "" {
			return &msg, qa.ValidationError("questionId and sessionId are required")
		}
		msg.Answer = &p
	case "":
		return &msg, qa.ValidationError("event is required")
	default:
		return &msg, qa.ValidationError("unknown event %q", strings.TrimSpace(msg.Event))
	}

	return &msg, nil
}

type ServerMessage struct {
	BaseMessage
	Event    string          `json:"event,omitempty"`
	Response *Response       `json:"response,omitempty"`
	Session  *types.Session  `json:"session,omitempty"`
	Question *types.Question `json:"question,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Message      string `json:"message,omitempty"`
	Data         any    `json:"data,omitempty"`
}

// Snapshot is the reply to a successful join.
type Snapshot struct {
	Session   types.Session    `json:"session"`
	Questions []types.Question `json:"questions"`
}

func NoErrOK(id int, event string, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Event: event,
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int, event string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Event: event,
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

// ErrResponse reports a domain error to a single connection. Internal
// errors never expose their cause.
func ErrResponse(id int, err *qa.Error) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Event: EventError,
		Response: &Response{
			ResponseCode: err.StatusCode(),
			Error:        string(err.Code),
			Message:      err.Message,
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Event: EventError,
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        string(qa.CodeInternal),
			Message:      "service unavailable",
		},
	}
}

func QuestionCreated(q types.Question) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Event:       EventQuestionCreated,
		Question:    &q,
	}
}

func QuestionUpdated(q types.Question) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Event:       EventQuestionUpdated,
		Question:    &q,
	}
}

func SessionEnded(s types.Session) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Event:       EventSessionEnded,
		Session:     &s,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
