package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockQARepository struct {
	mock.Mock
}

func (m *MockQARepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockQARepository) CreateSession(ctx context.Context, params CreateSessionParams) (Session, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockQARepository) GetSessionById(ctx context.Context, id string) (Session, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockQARepository) GetSessionByCode(ctx context.Context, code string) (Session, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockQARepository) EndSession(ctx context.Context, id string) (Session, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockQARepository) CreateQuestion(ctx context.Context, params CreateQuestionParams) (Question, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Question), args.Error(1)
}
func (m *MockQARepository) GetQuestionById(ctx context.Context, id string) (Question, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Question), args.Error(1)
}
func (m *MockQARepository) ListQuestions(ctx context.Context, sessionId string, unansweredOnly bool) ([]Question, error) {
	args := m.Called(ctx, sessionId, unansweredOnly)
	if questions, ok := args.Get(0).([]Question); ok {
		return questions, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockQARepository) MarkQuestionAnswered(ctx context.Context, id string) (Question, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Question), args.Error(1)
}
func (m *MockQARepository) UpdateVoteCounts(ctx context.Context, id string, up, down int) (Question, error) {
	args := m.Called(ctx, id, up, down)
	return args.Get(0).(Question), args.Error(1)
}
func (m *MockQARepository) GetVote(ctx context.Context, questionId, voterName string) (Vote, error) {
	args := m.Called(ctx, questionId, voterName)
	return args.Get(0).(Vote), args.Error(1)
}
func (m *MockQARepository) CreateVote(ctx context.Context, params CreateVoteParams) (Vote, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Vote), args.Error(1)
}
func (m *MockQARepository) UpdateVoteType(ctx context.Context, id string, voteType VoteType) (Vote, error) {
	args := m.Called(ctx, id, voteType)
	return args.Get(0).(Vote), args.Error(1)
}
func (m *MockQARepository) DeleteVote(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockQARepository) CountVotes(ctx context.Context, questionId string, voteType VoteType) (int, error) {
	args := m.Called(ctx, questionId, voteType)
	return args.Int(0), args.Error(1)
}
