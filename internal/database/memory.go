package database

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQARepository keeps everything in process memory. It enforces the
// same uniqueness rules as the postgres schema: one session per code and one
// vote per (question, voter).
type MemoryQARepository struct {
	mu             sync.RWMutex
	sessions       map[string]Session
	sessionsByCode map[string]string
	questions      map[string]Question
	questionOrder  map[string][]string
	votes          map[string]Vote
	votesByVoter   map[voteKey]string
}

type voteKey struct {
	questionId string
	voterName  string
}

func NewMemoryQARepository() *MemoryQARepository {
	return &MemoryQARepository{
		sessions:       make(map[string]Session),
		sessionsByCode: make(map[string]string),
		questions:      make(map[string]Question),
		questionOrder:  make(map[string][]string),
		votes:          make(map[string]Vote),
		votesByVoter:   make(map[voteKey]string),
	}
}

func (m *MemoryQARepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryQARepository) CreateSession(ctx context.Context, params CreateSessionParams) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessionsByCode[params.Code]; ok {
		return Session{}, ErrConflict
	}

	now := time.Now().UTC()
	s := Session{
		Id:                  uuid.NewString(),
		Code:                params.Code,
		PresenterName:       params.PresenterName,
		PresenterSecretHash: params.PresenterSecretHash,
		Active:              true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	m.sessions[s.Id] = s
	m.sessionsByCode[s.Code] = s.Id
	return s, nil
}

func (m *MemoryQARepository) GetSessionById(ctx context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryQARepository) GetSessionByCode(ctx context.Context, code string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.sessionsByCode[code]
	if !ok {
		return Session{}, ErrNotFound
	}
	return m.sessions[id], nil
}

func (m *MemoryQARepository) EndSession(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}

	if s.Active {
		s.Active = false
		s.UpdatedAt = time.Now().UTC()
		m.sessions[id] = s
	}
	return s, nil
}

func (m *MemoryQARepository) CreateQuestion(ctx context.Context, params CreateQuestionParams) (Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[params.SessionId]; !ok {
		return Question{}, ErrNotFound
	}

	now := time.Now().UTC()
	q := Question{
		Id:         uuid.NewString(),
		SessionId:  params.SessionId,
		AuthorName: params.AuthorName,
		Text:       params.Text,
		Media:      slices.Clone(params.Media),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.questions[q.Id] = q
	m.questionOrder[q.SessionId] = append(m.questionOrder[q.SessionId], q.Id)
	return cloneQuestion(q), nil
}

func (m *MemoryQARepository) GetQuestionById(ctx context.Context, id string) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.questions[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	return cloneQuestion(q), nil
}

func (m *MemoryQARepository) ListQuestions(ctx context.Context, sessionId string, unansweredOnly bool) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	questions := make([]Question, 0, len(m.questionOrder[sessionId]))
	for _, id := range m.questionOrder[sessionId] {
		q := m.questions[id]
		if unansweredOnly && q.IsAnswered {
			continue
		}
		questions = append(questions, cloneQuestion(q))
	}
	return questions, nil
}

func (m *MemoryQARepository) MarkQuestionAnswered(ctx context.Context, id string) (Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.questions[id]
	if !ok {
		return Question{}, ErrNotFound
	}

	if !q.IsAnswered {
		q.IsAnswered = true
		q.UpdatedAt = time.Now().UTC()
		m.questions[id] = q
	}
	return cloneQuestion(q), nil
}

func (m *MemoryQARepository) UpdateVoteCounts(ctx context.Context, id string, up, down int) (Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.questions[id]
	if !ok {
		return Question{}, ErrNotFound
	}

	q.UpVotes = up
	q.DownVotes = down
	q.UpdatedAt = time.Now().UTC()
	m.questions[id] = q
	return cloneQuestion(q), nil
}

func (m *MemoryQARepository) GetVote(ctx context.Context, questionId, voterName string) (Vote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.votesByVoter[voteKey{questionId, voterName}]
	if !ok {
		return Vote{}, ErrNotFound
	}
	return m.votes[id], nil
}

func (m *MemoryQARepository) CreateVote(ctx context.Context, params CreateVoteParams) (Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.questions[params.QuestionId]; !ok {
		return Vote{}, ErrNotFound
	}

	key := voteKey{params.QuestionId, params.VoterName}
	if _, ok := m.votesByVoter[key]; ok {
		return Vote{}, ErrConflict
	}

	now := time.Now().UTC()
	v := Vote{
		Id:         uuid.NewString(),
		QuestionId: params.QuestionId,
		VoterName:  params.VoterName,
		Type:       params.Type,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.votes[v.Id] = v
	m.votesByVoter[key] = v.Id
	return v, nil
}

func (m *MemoryQARepository) UpdateVoteType(ctx context.Context, id string, voteType VoteType) (Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.votes[id]
	if !ok {
		return Vote{}, ErrNotFound
	}

	v.Type = voteType
	v.UpdatedAt = time.Now().UTC()
	m.votes[id] = v
	return v, nil
}

func (m *MemoryQARepository) DeleteVote(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.votes[id]
	if !ok {
		return ErrNotFound
	}

	delete(m.votes, id)
	delete(m.votesByVoter, voteKey{v.QuestionId, v.VoterName})
	return nil
}

func (m *MemoryQARepository) CountVotes(ctx context.Context, questionId string, voteType VoteType) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int
	for _, v := range m.votes {
		if v.QuestionId == questionId && v.Type == voteType {
			n++
		}
	}
	return n, nil
}

// VoteRows counts the stored vote rows for the pair.
func (m *MemoryQARepository) VoteRows(questionId, voterName string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int
	for _, v := range m.votes {
		if v.QuestionId == questionId && v.VoterName == voterName {
			n++
		}
	}
	return n
}

func cloneQuestion(q Question) Question {
	q.Media = slices.Clone(q.Media)
	return q
}
