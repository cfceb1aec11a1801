package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-liveqa/internal/auth"
	"github.com/npezzotti/go-liveqa/internal/database"
	"github.com/npezzotti/go-liveqa/internal/qa"
	"github.com/npezzotti/go-liveqa/internal/server"
	"github.com/npezzotti/go-liveqa/internal/stats"
	"github.com/npezzotti/go-liveqa/internal/types"
	"go.uber.org/zap"
)

type CreateSessionRequest struct {
	PresenterName string `json:"presenterName"`
	CustomCode    string `json:"customCode,omitempty"`
}

type CreateQuestionRequest struct {
	SessionId  string        `json:"sessionId"`
	AuthorName string        `json:"authorName"`
	Text       string        `json:"text"`
	Media      []types.Media `json:"media,omitempty"`
}

type VoteRequest struct {
	VoterName string `json:"voterName"`
	VoteType  string `json:"voteType"`
}

// successResponse is the success half of the response envelope.
type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func (s *QAApp) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("json encode", zap.Error(err))
	}
}

func (s *QAApp) writeData(w http.ResponseWriter, statusCode int, data any) {
	s.writeJson(w, statusCode, successResponse{Success: true, Data: data})
}

func (s *QAApp) writeError(w http.ResponseWriter, e *ApiError) {
	s.writeJson(w, e.StatusCode, e)
}

// fail writes err and logs it when it is an internal error.
func (s *QAApp) fail(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	apiErr := NewApiError(err)
	if apiErr.StatusCode == http.StatusInternalServerError {
		s.log.Error(op+" failed", append(fields, zap.Error(err))...)
	}

	s.writeError(w, apiErr)
}

func (s *QAApp) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.storeTimeout)
}

func decodeBody(r *http.Request, v any) *ApiError {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return NewBadRequestError("invalid request body")
	}

	return nil
}

func (s *QAApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.repo.Ping(ctx); err != nil {
		s.log.Error("health check", zap.Error(err))
		http.Error(w, "database unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *QAApp) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if errResp := decodeBody(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	created, err := s.svc.Sessions.Create(ctx, req.PresenterName, req.CustomCode)
	if err != nil {
		s.fail(w, "create session", err)
		return
	}

	token, err := s.tokens.Issue(created.Id, created.Secret)
	if err != nil {
		s.fail(w, "issue token", err, zap.String("session_id", created.Id))
		return
	}

	s.log.Info("session created", zap.String("session_id", created.Id), zap.String("code", created.Code))
	s.writeData(w, http.StatusCreated, qa.SessionView(created.Session, token))
}

func (s *QAApp) getSession(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !qa.ValidCode(code) {
		s.writeError(w, NewNotFoundError("session"))
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	session, err := s.svc.Sessions.GetByCode(ctx, code)
	if err != nil {
		s.fail(w, "get session", err, zap.String("code", code))
		return
	}

	s.writeData(w, http.StatusOK, qa.SessionView(session, ""))
}

func (s *QAApp) endSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	identity, _ := auth.IdentityFrom(r.Context())
	if !identity.CanModerate(id) {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	session, err := s.svc.Sessions.End(ctx, id)
	if err != nil {
		s.fail(w, "end session", err, zap.String("session_id", id))
		return
	}

	view := qa.SessionView(session, "")
	s.qs.Publish(session.Id, server.SessionEnded(view))
	s.writeData(w, http.StatusOK, view)
}

func (s *QAApp) createQuestion(w http.ResponseWriter, r *http.Request) {
	var req CreateQuestionRequest
	if errResp := decodeBody(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	if req.SessionId == "" {
		s.writeError(w, NewBadRequestError("sessionId is required"))
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	q, err := s.svc.Questions.Create(ctx, req.SessionId, req.AuthorName, req.Text, qa.MediaFromView(req.Media))
	if err != nil {
		s.fail(w, "create question", err, zap.String("session_id", req.SessionId))
		return
	}

	s.stats.Incr(stats.QuestionsCreated)
	view := qa.QuestionView(q)
	s.qs.Publish(q.SessionId, server.QuestionCreated(view))
	s.writeData(w, http.StatusCreated, view)
}

func (s *QAApp) listQuestions(w http.ResponseWriter, r *http.Request) {
	sessionId := r.PathValue("sessionId")
	unanswered := r.URL.Query().Get("unanswered") == "true"

	ctx, cancel := s.storeContext(r)
	defer cancel()

	questions, err := s.svc.Questions.ListBySession(ctx, sessionId, unanswered)
	if err != nil {
		s.fail(w, "list questions", err, zap.String("session_id", sessionId))
		return
	}

	s.writeData(w, http.StatusOK, qa.QuestionViews(questions))
}

func (s *QAApp) answerQuestion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	identity, _ := auth.IdentityFrom(r.Context())

	ctx, cancel := s.storeContext(r)
	defer cancel()

	q, err := s.svc.Questions.Get(ctx, id)
	if err != nil {
		s.fail(w, "get question", err, zap.String("question_id", id))
		return
	}

	if !identity.CanModerate(q.SessionId) {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	q, err = s.svc.Questions.MarkAnswered(ctx, id)
	if err != nil {
		s.fail(w, "mark answered", err, zap.String("question_id", id))
		return
	}

	view := qa.QuestionView(q)
	s.qs.Publish(q.SessionId, server.QuestionUpdated(view))
	s.writeData(w, http.StatusOK, view)
}

func (s *QAApp) voteQuestion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req VoteRequest
	if errResp := decodeBody(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	voteType := database.VoteType(req.VoteType)
	if !voteType.Valid() {
		s.writeError(w, NewBadRequestError("voteType must be \"up\" or \"down\""))
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	q, err := s.svc.Ledger.Cast(ctx, id, req.VoterName, voteType)
	if err != nil {
		s.fail(w, "cast vote", err, zap.String("question_id", id))
		return
	}

	s.stats.Incr(stats.VotesCast)
	view := qa.QuestionView(q)
	s.qs.Publish(q.SessionId, server.QuestionUpdated(view))
	s.writeData(w, http.StatusOK, view)
}

// serveWs upgrades the connection. An optional token query parameter
// makes the connection a presenter connection; an invalid token is
// rejected before the upgrade.
func (s *QAApp) serveWs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	identity, err := s.authorizer.Authorize(ctx, r.URL.Query().Get("token"))
	cancel()
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			s.writeError(w, NewUnauthorizedError())
			return
		}
		s.fail(w, "authorize websocket", err)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade connection", zap.Error(err))
		return
	}

	client := server.NewClient(identity, conn, s.qs, s.log)
	s.qs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
