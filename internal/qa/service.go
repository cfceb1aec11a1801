package qa

import (
	"github.com/npezzotti/go-liveqa/internal/database"
	"go.uber.org/zap"
)

// Service bundles the stores shared by the REST handlers and the realtime
// gateway.
type Service struct {
	Sessions  *SessionStore
	Questions *QuestionStore
	Ledger    *VoteLedger
}

func NewService(repo database.QARepository, cache SessionCache, log *zap.Logger) *Service {
	questions := NewQuestionStore(repo, log)
	return &Service{
		Sessions:  NewSessionStore(repo, cache, log),
		Questions: questions,
		Ledger:    NewVoteLedger(repo, questions, log),
	}
}
