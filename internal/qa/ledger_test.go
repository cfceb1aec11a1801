package qa

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"testing"

	"github.com/npezzotti/go-liveqa/internal/database"
	"github.com/npezzotti/go-liveqa/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupQuestion(t *testing.T) (*Service, *database.MemoryQARepository, database.Question) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	session, err := svc.Sessions.Create(ctx, "Alice", "")
	require.NoError(t, err)
	q, err := svc.Questions.Create(ctx, session.Id, "Bob", "Hi?", nil)
	require.NoError(t, err)

	return svc, repo, q
}

func TestVoteLedger_Toggle(t *testing.T) {
	svc, repo, q := setupQuestion(t)
	ctx := context.Background()

	vote, err := svc.Ledger.Toggle(ctx, q.Id, "Bob", database.VoteUp)
	require.NoError(t, err)
	require.NotNil(t, vote, "expected vote to be created")
	assert.Equal(t, database.VoteUp, vote.Type)

	vote, err = svc.Ledger.Toggle(ctx, q.Id, "Bob", database.VoteDown)
	require.NoError(t, err)
	require.NotNil(t, vote, "expected vote to be flipped")
	assert.Equal(t, database.VoteDown, vote.Type)
	assert.Equal(t, 1, repo.VoteRows(q.Id, "Bob"), "expected flip to update in place")

	vote, err = svc.Ledger.Toggle(ctx, q.Id, "Bob", database.VoteDown)
	require.NoError(t, err)
	assert.Nil(t, vote, "expected repeated vote to retract")
	assert.Equal(t, 0, repo.VoteRows(q.Id, "Bob"), "expected retraction to delete the row")
}

func TestVoteLedger_Toggle_Validation(t *testing.T) {
	svc, _, q := setupQuestion(t)

	_, err := svc.Ledger.Toggle(context.Background(), q.Id, "Bob", "sideways")
	assert.True(t, IsCode(err, CodeValidation), "expected ValidationError for bad type, got %v", err)

	_, err = svc.Ledger.Toggle(context.Background(), q.Id, " ", database.VoteUp)
	assert.True(t, IsCode(err, CodeValidation), "expected ValidationError for empty voter, got %v", err)
}

func TestVoteLedger_Cast(t *testing.T) {
	svc, _, q := setupQuestion(t)
	ctx := context.Background()

	steps := []struct {
		voteType database.VoteType
		up, down int
	}{
		{database.VoteUp, 1, 0},
		{database.VoteUp, 0, 0},
		{database.VoteDown, 0, 1},
		{database.VoteUp, 1, 0},
	}

	for i, step := range steps {
		updated, err := svc.Ledger.Cast(ctx, q.Id, "Bob", step.voteType)
		require.NoErrorf(t, err, "step %d: expected no error", i)
		assert.Equalf(t, step.up, updated.UpVotes, "step %d: up votes", i)
		assert.Equalf(t, step.down, updated.DownVotes, "step %d: down votes", i)
	}
}

func TestVoteLedger_Cast_AnsweredQuestion(t *testing.T) {
	svc, repo, q := setupQuestion(t)
	ctx := context.Background()

	_, err := svc.Questions.MarkAnswered(ctx, q.Id)
	require.NoError(t, err)

	_, err = svc.Ledger.Cast(ctx, q.Id, "Bob", database.VoteUp)
	assert.True(t, IsCode(err, CodeValidation), "expected ValidationError, got %v", err)
	assert.Equal(t, 0, repo.VoteRows(q.Id, "Bob"), "expected no vote to be stored")
}

func TestVoteLedger_Cast_UnknownQuestion(t *testing.T) {
	svc, _, _ := setupQuestion(t)

	_, err := svc.Ledger.Cast(context.Background(), "missing", "Bob", database.VoteUp)
	assert.True(t, IsCode(err, CodeNotFound), "expected NotFound, got %v", err)
}

func TestVoteLedger_Cast_CountsMatchLedger(t *testing.T) {
	svc, repo, q := setupQuestion(t)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(42))
	voters := []string{"Bob", "Carol", "Dan", "Eve"}
	types := []database.VoteType{database.VoteUp, database.VoteDown}

	for range 200 {
		voter := voters[rng.Intn(len(voters))]
		updated, err := svc.Ledger.Cast(ctx, q.Id, voter, types[rng.Intn(len(types))])
		require.NoError(t, err)

		up, err := repo.CountVotes(ctx, q.Id, database.VoteUp)
		require.NoError(t, err)
		down, err := repo.CountVotes(ctx, q.Id, database.VoteDown)
		require.NoError(t, err)

		assert.Equal(t, up, updated.UpVotes, "expected cached up votes to equal ledger")
		assert.Equal(t, down, updated.DownVotes, "expected cached down votes to equal ledger")
		assert.LessOrEqual(t, repo.VoteRows(q.Id, voter), 1, "expected at most one vote per voter")
	}
}

func TestVoteLedger_Cast_Concurrent(t *testing.T) {
	svc, repo, q := setupQuestion(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			voter := "voter" + strconv.Itoa(i%4)
			_, err := svc.Ledger.Cast(ctx, q.Id, voter, database.VoteUp)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := range 4 {
		assert.LessOrEqual(t, repo.VoteRows(q.Id, "voter"+strconv.Itoa(i)), 1, "expected at most one vote per voter")
	}

	// every voter cast five times so each ends with one up vote
	final, err := svc.Questions.Get(ctx, q.Id)
	require.NoError(t, err)
	assert.Equal(t, 4, final.UpVotes, "expected cached count to settle on the ledger total")
	assert.Equal(t, 0, final.DownVotes)
}

func TestVoteLedger_Toggle_RetriesConflictAsUpdate(t *testing.T) {
	repo := &database.MockQARepository{}
	defer repo.AssertExpectations(t)

	ctx := context.Background()
	existing := database.Vote{Id: "v1", QuestionId: "q1", VoterName: "Bob", Type: database.VoteUp}

	repo.On("GetVote", mock.Anything, "q1", "Bob").Return(database.Vote{}, database.ErrNotFound).Once()
	repo.On("CreateVote", mock.Anything, mock.Anything).Return(database.Vote{}, database.ErrConflict).Once()
	repo.On("GetVote", mock.Anything, "q1", "Bob").Return(existing, nil).Once()
	repo.On("UpdateVoteType", mock.Anything, "v1", database.VoteDown).Return(database.Vote{Id: "v1", Type: database.VoteDown}, nil).Once()

	svc := NewService(repo, nil, testutil.TestLogger(t))
	vote, err := svc.Ledger.Toggle(ctx, "q1", "Bob", database.VoteDown)
	require.NoError(t, err, "expected conflict to be retried")
	require.NotNil(t, vote)
	assert.Equal(t, database.VoteDown, vote.Type, "expected retry to take the update path")
}

func TestKeyedMutex(t *testing.T) {
	km := newKeyedMutex()

	unlock := km.Lock("a")
	assert.Len(t, km.locks, 1, "expected one lock entry")

	unlockB := km.Lock("b")
	assert.Len(t, km.locks, 2, "expected separate keys to get separate locks")

	unlock()
	unlockB()
	assert.Empty(t, km.locks, "expected released locks to be removed")
}
