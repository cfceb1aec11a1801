package database

import "context"

// QARepository is the persistence contract for sessions, questions and votes.
// Lookups that find nothing return ErrNotFound; writes that violate a
// uniqueness constraint return ErrConflict.
type QARepository interface {
	Ping(ctx context.Context) error
	CreateSession(ctx context.Context, params CreateSessionParams) (Session, error)
	GetSessionById(ctx context.Context, id string) (Session, error)
	GetSessionByCode(ctx context.Context, code string) (Session, error)
	EndSession(ctx context.Context, id string) (Session, error)
	CreateQuestion(ctx context.Context, params CreateQuestionParams) (Question, error)
	GetQuestionById(ctx context.Context, id string) (Question, error)
	ListQuestions(ctx context.Context, sessionId string, unansweredOnly bool) ([]Question, error)
	MarkQuestionAnswered(ctx context.Context, id string) (Question, error)
	UpdateVoteCounts(ctx context.Context, id string, up, down int) (Question, error)
	GetVote(ctx context.Context, questionId, voterName string) (Vote, error)
	CreateVote(ctx context.Context, params CreateVoteParams) (Vote, error)
	UpdateVoteType(ctx context.Context, id string, voteType VoteType) (Vote, error)
	DeleteVote(ctx context.Context, id string) error
	CountVotes(ctx context.Context, questionId string, voteType VoteType) (int, error)
}
