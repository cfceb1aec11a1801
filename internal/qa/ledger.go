package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/npezzotti/go-liveqa/internal/database"
	"go.uber.org/zap"
)

const maxToggleAttempts = 3

// keyedMutex hands out one mutex per key and frees it when the last holder
// unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (km *keyedMutex) Lock(key string) func() {
	km.mu.Lock()
	m, ok := km.locks[key]
	if !ok {
		m = &refMutex{}
		km.locks[key] = m
	}
	m.refs++
	km.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()

		km.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}

type VoteLedger struct {
	repo      database.QARepository
	questions *QuestionStore
	locks     *keyedMutex
	log       *zap.Logger
}

func NewVoteLedger(repo database.QARepository, questions *QuestionStore, log *zap.Logger) *VoteLedger {
	return &VoteLedger{
		repo:      repo,
		questions: questions,
		locks:     newKeyedMutex(),
		log:       log,
	}
}

// Toggle applies one vote from voterName. It creates a vote when none
// exists, flips an opposite vote and retracts a vote of the same type. A
// nil vote means the vote was retracted.
func (vl *VoteLedger) Toggle(ctx context.Context, questionId, voterName string, voteType database.VoteType) (*database.Vote, error) {
	if !voteType.Valid() {
		return nil, ValidationError("vote type must be %q or %q", database.VoteUp, database.VoteDown)
	}
	if strings.TrimSpace(voterName) == "" {
		return nil, ValidationError("voter name is required")
	}

	unlock := vl.locks.Lock(questionId + "\x00" + voterName)
	defer unlock()

	for range maxToggleAttempts {
		vote, err := vl.toggle(ctx, questionId, voterName, voteType)
		if errors.Is(err, database.ErrConflict) {
			// another process inserted the row first; retry as an update
			vl.log.Debug("vote insert conflict",
				zap.String("question_id", questionId),
				zap.String("voter", voterName),
			)
			continue
		}

		return vote, err
	}

	return nil, InternalError(fmt.Errorf("toggle vote: gave up after %d attempts", maxToggleAttempts))
}

func (vl *VoteLedger) toggle(ctx context.Context, questionId, voterName string, voteType database.VoteType) (*database.Vote, error) {
	existing, err := vl.repo.GetVote(ctx, questionId, voterName)
	switch {
	case errors.Is(err, database.ErrNotFound):
		vote, err := vl.repo.CreateVote(ctx, database.CreateVoteParams{
			QuestionId: questionId,
			VoterName:  voterName,
			Type:       voteType,
		})
		if err != nil {
			if errors.Is(err, database.ErrConflict) {
				return nil, err
			}
			return nil, mapRepoError("question", err)
		}
		return &vote, nil
	case err != nil:
		return nil, InternalError(fmt.Errorf("get vote: %w", err))
	}

	if existing.Type == voteType {
		if err := vl.repo.DeleteVote(ctx, existing.Id); err != nil && !errors.Is(err, database.ErrNotFound) {
			return nil, InternalError(fmt.Errorf("delete vote: %w", err))
		}
		return nil, nil
	}

	vote, err := vl.repo.UpdateVoteType(ctx, existing.Id, voteType)
	if err != nil {
		return nil, mapRepoError("vote", err)
	}

	return &vote, nil
}

func (vl *VoteLedger) CountUp(ctx context.Context, questionId string) (int, error) {
	return vl.count(ctx, questionId, database.VoteUp)
}

func (vl *VoteLedger) CountDown(ctx context.Context, questionId string) (int, error) {
	return vl.count(ctx, questionId, database.VoteDown)
}

func (vl *VoteLedger) count(ctx context.Context, questionId string, voteType database.VoteType) (int, error) {
	n, err := vl.repo.CountVotes(ctx, questionId, voteType)
	if err != nil {
		return 0, InternalError(fmt.Errorf("count %s votes: %w", voteType, err))
	}

	return n, nil
}

// Cast toggles the vote and writes the recounted totals back to the
// question before returning it. Answered questions no longer accept votes.
func (vl *VoteLedger) Cast(ctx context.Context, questionId, voterName string, voteType database.VoteType) (database.Question, error) {
	q, err := vl.questions.Get(ctx, questionId)
	if err != nil {
		return database.Question{}, err
	}
	if q.IsAnswered {
		return database.Question{}, ValidationError("question has already been answered")
	}

	if _, err := vl.Toggle(ctx, questionId, voterName, voteType); err != nil {
		return database.Question{}, err
	}

	// recount and write-back are serialized per question
	unlock := vl.locks.Lock(questionId)
	defer unlock()

	up, err := vl.CountUp(ctx, questionId)
	if err != nil {
		return database.Question{}, err
	}

	down, err := vl.CountDown(ctx, questionId)
	if err != nil {
		return database.Question{}, err
	}

	return vl.questions.SetVoteCounts(ctx, questionId, up, down)
}
