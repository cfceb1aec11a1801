package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/npezzotti/go-liveqa/internal/database"
	"go.uber.org/zap"
)

const maxQuestionTextLen = 500

type QuestionStore struct {
	repo database.QARepository
	log  *zap.Logger
}

func NewQuestionStore(repo database.QARepository, log *zap.Logger) *QuestionStore {
	return &QuestionStore{repo: repo, log: log}
}

func validateMedia(media []database.Media) error {
	for i, m := range media {
		switch m.Type {
		case database.MediaImage, database.MediaLink:
		default:
			return ValidationError("media[%d]: type must be %q or %q", i, database.MediaImage, database.MediaLink)
		}

		if strings.TrimSpace(m.Url) == "" {
			return ValidationError("media[%d]: url is required", i)
		}
	}

	return nil
}

// Create adds a question to an active session. New questions start
// unanswered with no votes.
func (qs *QuestionStore) Create(ctx context.Context, sessionId, authorName, text string, media []database.Media) (database.Question, error) {
	if strings.TrimSpace(authorName) == "" {
		return database.Question{}, ValidationError("author name is required")
	}
	if strings.TrimSpace(text) == "" {
		return database.Question{}, ValidationError("text is required")
	}
	if utf8.RuneCountInString(text) > maxQuestionTextLen {
		return database.Question{}, ValidationError("text must be at most %d characters", maxQuestionTextLen)
	}
	if err := validateMedia(media); err != nil {
		return database.Question{}, err
	}

	session, err := qs.repo.GetSessionById(ctx, sessionId)
	if err != nil {
		return database.Question{}, mapRepoError("session", err)
	}
	if !session.Active {
		return database.Question{}, ValidationError("session has ended")
	}

	q, err := qs.repo.CreateQuestion(ctx, database.CreateQuestionParams{
		SessionId:  sessionId,
		AuthorName: authorName,
		Text:       text,
		Media:      media,
	})
	if err != nil {
		return database.Question{}, mapRepoError("session", err)
	}

	return q, nil
}

func (qs *QuestionStore) ListBySession(ctx context.Context, sessionId string, unansweredOnly bool) ([]database.Question, error) {
	questions, err := qs.repo.ListQuestions(ctx, sessionId, unansweredOnly)
	if err != nil {
		return nil, InternalError(fmt.Errorf("list questions: %w", err))
	}

	return questions, nil
}

func (qs *QuestionStore) Get(ctx context.Context, id string) (database.Question, error) {
	q, err := qs.repo.GetQuestionById(ctx, id)
	if err != nil {
		return database.Question{}, mapRepoError("question", err)
	}

	return q, nil
}

// MarkAnswered is idempotent.
func (qs *QuestionStore) MarkAnswered(ctx context.Context, id string) (database.Question, error) {
	q, err := qs.repo.MarkQuestionAnswered(ctx, id)
	if err != nil {
		return database.Question{}, mapRepoError("question", err)
	}

	return q, nil
}

func (qs *QuestionStore) SetVoteCounts(ctx context.Context, id string, up, down int) (database.Question, error) {
	if up < 0 || down < 0 {
		return database.Question{}, InternalError(errors.New("negative vote count"))
	}

	q, err := qs.repo.UpdateVoteCounts(ctx, id, up, down)
	if err != nil {
		return database.Question{}, mapRepoError("question", err)
	}

	return q, nil
}
