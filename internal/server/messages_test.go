package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/npezzotti/go-liveqa/internal/qa"
	"github.com/npezzotti/go-liveqa/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_decodeClientMessage(t *testing.T) {
	tcases := []struct {
		name    string
		raw     string
		wantErr bool
		wantNil bool
		wantId  int
		check   func(t *testing.T, msg *ClientMessage)
	}{
		{
			name:    "invalid json",
			raw:     `not json`,
			wantErr: true,
			wantNil: true,
		},
		{
			name:   "join room",
			raw:    `{"id":1,"event":"join-room","data":{"code":"AbC123"}}`,
			wantId: 1,
			check: func(t *testing.T, msg *ClientMessage) {
				require.NotNil(t, msg.Join)
				assert.Equal(t, "AbC123", msg.Join.Code)
			},
		},
		{
			name:    "join room bad code",
			raw:     `{"id":2,"event":"join-room","data":{"code":"AbC12!"}}`,
			wantErr: true,
			wantId:  2,
		},
		{
			name:   "submit question with media",
			raw:    `{"id":3,"event":"submit-question","data":{"sessionId":"s1","authorName":"ann","text":"hi?","media":[{"type":"image","url":"https://x/y.png"}]}}`,
			wantId: 3,
			check: func(t *testing.T, msg *ClientMessage) {
				require.NotNil(t, msg.Question)
				assert.Equal(t, "s1", msg.Question.SessionId)
				assert.Equal(t, []types.Media{{Type: "image", Url: "https://x/y.png"}}, msg.Question.Media)
			},
		},
		{
			name:    "submit question without session",
			raw:     `{"id":4,"event":"submit-question","data":{"authorName":"ann","text":"hi?"}}`,
			wantErr: true,
			wantId:  4,
		},
		{
			name:   "submit vote",
			raw:    `{"id":5,"event":"submit-vote","data":{"questionId":"q1","voterName":"bob","type":"down"}}`,
			wantId: 5,
			check: func(t *testing.T, msg *ClientMessage) {
				require.NotNil(t, msg.Vote)
				assert.Equal(t, "down", msg.Vote.Type)
			},
		},
		{
			name:    "submit vote invalid type",
			raw:     `{"id":6,"event":"submit-vote","data":{"questionId":"q1","voterName":"bob","type":"meh"}}`,
			wantErr: true,
			wantId:  6,
		},
		{
			name:   "mark answered",
			raw:    `{"id":7,"event":"mark-answered","data":{"questionId":"q1","sessionId":"s1"}}`,
			wantId: 7,
			check: func(t *testing.T, msg *ClientMessage) {
				require.NotNil(t, msg.Answer)
				assert.Equal(t, "q1", msg.Answer.QuestionId)
			},
		},
		{
			name:    "mark answered missing session",
			raw:     `{"id":8,"event":"mark-answered","data":{"questionId":"q1"}}`,
			wantErr: true,
			wantId:  8,
		},
		{
			name:    "null data",
			raw:     `{"id":9,"event":"submit-vote","data":null}`,
			wantErr: true,
			wantId:  9,
		},
		{
			name:    "payload of wrong shape",
			raw:     `{"id":10,"event":"join-room","data":[1,2]}`,
			wantErr: true,
			wantId:  10,
		},
		{
			name:    "missing event",
			raw:     `{"id":11,"data":{}}`,
			wantErr: true,
			wantId:  11,
		},
		{
			name:    "unknown event",
			raw:     `{"id":12,"event":"leave-room","data":{}}`,
			wantErr: true,
			wantId:  12,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := decodeClientMessage([]byte(tc.raw))
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, qa.IsCode(err, qa.CodeValidation), "expected a validation error, got %v", err)
			} else {
				require.NoError(t, err)
			}

			if tc.wantNil {
				assert.Nil(t, msg)
				return
			}

			require.NotNil(t, msg)
			assert.Equal(t, tc.wantId, msg.Id)
			if tc.check != nil {
				tc.check(t, msg)
			}
		})
	}
}

func TestNoErrOK(t *testing.T) {
	result := NoErrOK(1, EventSnapshot, map[string]any{"testkey": "testvalue"})

	assert.Equal(t, 1, result.Id)
	assert.Equal(t, EventSnapshot, result.Event)
	assert.False(t, result.Timestamp.IsZero())
	require.NotNil(t, result.Response)
	assert.Equal(t, http.StatusOK, result.Response.ResponseCode)
	assert.Equal(t, map[string]any{"testkey": "testvalue"}, result.Response.Data)
}

func TestNoErrAccepted(t *testing.T) {
	result := NoErrAccepted(2, EventSubmitVote)

	assert.Equal(t, 2, result.Id)
	assert.Equal(t, EventSubmitVote, result.Event)
	assert.Equal(t, http.StatusAccepted, result.Response.ResponseCode)
	assert.Nil(t, result.Response.Data)
}

func TestErrResponse(t *testing.T) {
	tcases := []struct {
		name        string
		err         *qa.Error
		wantCode    int
		wantError   string
		wantMessage string
	}{
		{
			name:        "validation",
			err:         qa.ValidationError("text is required"),
			wantCode:    http.StatusBadRequest,
			wantError:   "ValidationError",
			wantMessage: "text is required",
		},
		{
			name:        "not found",
			err:         qa.NotFoundError("question"),
			wantCode:    http.StatusNotFound,
			wantError:   "NotFound",
			wantMessage: "question not found",
		},
		{
			name:        "rate limited",
			err:         qa.RateLimitedError(),
			wantCode:    http.StatusTooManyRequests,
			wantError:   "RateLimited",
			wantMessage: "rate limit exceeded",
		},
		{
			name:        "internal hides cause",
			err:         qa.InternalError(errors.New("pq: password authentication failed")),
			wantCode:    http.StatusInternalServerError,
			wantError:   "Internal",
			wantMessage: "internal server error",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			result := ErrResponse(3, tc.err)

			assert.Equal(t, 3, result.Id)
			assert.Equal(t, EventError, result.Event)
			assert.Equal(t, tc.wantCode, result.Response.ResponseCode)
			assert.Equal(t, tc.wantError, result.Response.Error)
			assert.Equal(t, tc.wantMessage, result.Response.Message)
		})
	}
}

func TestServerMessage_JSON(t *testing.T) {
	q := types.Question{Id: "q1", SessionId: "s1", Text: "hi?", Votes: types.Votes{Up: 2}}
	raw, err := json.Marshal(QuestionUpdated(q))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, EventQuestionUpdated, decoded["event"])
	assert.NotContains(t, decoded, "id")
	assert.NotContains(t, decoded, "response")

	question := decoded["question"].(map[string]any)
	assert.Equal(t, "q1", question["id"])
	assert.Equal(t, map[string]any{"up": float64(2), "down": float64(0)}, question["votes"])
}

func TestSessionEnded(t *testing.T) {
	msg := SessionEnded(types.Session{Id: "s1", Active: false})
	assert.Equal(t, EventSessionEnded, msg.Event)
	require.NotNil(t, msg.Session)
	assert.False(t, msg.Session.Active)
}
