package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	sessionColumns  = "id, code, presenter_name, presenter_secret_hash, active, created_at, updated_at"
	questionColumns = "id, session_id, author_name, text, is_answered, up_votes, down_votes, media, created_at, updated_at"
	voteColumns     = "id, question_id, voter_name, type, created_at, updated_at"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	err := row.Scan(
		&s.Id,
		&s.Code,
		&s.PresenterName,
		&s.PresenterSecretHash,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)

	return s, mapError(err)
}

func scanQuestion(row rowScanner) (Question, error) {
	var (
		q     Question
		media []byte
	)
	err := row.Scan(
		&q.Id,
		&q.SessionId,
		&q.AuthorName,
		&q.Text,
		&q.IsAnswered,
		&q.UpVotes,
		&q.DownVotes,
		&media,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return Question{}, mapError(err)
	}

	if len(media) > 0 {
		if err := json.Unmarshal(media, &q.Media); err != nil {
			return Question{}, fmt.Errorf("decode media: %w", err)
		}
	}

	return q, nil
}

func scanVote(row rowScanner) (Vote, error) {
	var v Vote
	err := row.Scan(
		&v.Id,
		&v.QuestionId,
		&v.VoterName,
		&v.Type,
		&v.CreatedAt,
		&v.UpdatedAt,
	)

	return v, mapError(err)
}

func (db *PgQARepository) CreateSession(ctx context.Context, params CreateSessionParams) (Session, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO sessions (id, code, presenter_name, presenter_secret_hash, active, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, TRUE, $5, $6) RETURNING "+sessionColumns,
		uuid.NewString(),
		params.Code,
		params.PresenterName,
		params.PresenterSecretHash,
		now,
		now,
	)

	return scanSession(row)
}

func (db *PgQARepository) GetSessionById(ctx context.Context, id string) (Session, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = $1 LIMIT 1",
		id,
	)

	return scanSession(row)
}

func (db *PgQARepository) GetSessionByCode(ctx context.Context, code string) (Session, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE code = $1 LIMIT 1",
		code,
	)

	return scanSession(row)
}

// EndSession only touches updated_at on the first transition so repeated
// calls leave the row unchanged.
func (db *PgQARepository) EndSession(ctx context.Context, id string) (Session, error) {
	row := db.conn.QueryRowContext(ctx,
		"UPDATE sessions SET active = FALSE, "+
			"updated_at = CASE WHEN active THEN $2 ELSE updated_at END "+
			"WHERE id = $1 RETURNING "+sessionColumns,
		id,
		time.Now().UTC(),
	)

	return scanSession(row)
}

func (db *PgQARepository) CreateQuestion(ctx context.Context, params CreateQuestionParams) (Question, error) {
	media := params.Media
	if media == nil {
		media = []Media{}
	}

	mediaJson, err := json.Marshal(media)
	if err != nil {
		return Question{}, fmt.Errorf("encode media: %w", err)
	}

	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO questions (id, session_id, author_name, text, is_answered, up_votes, down_votes, media, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, FALSE, 0, 0, $5, $6, $7) RETURNING "+questionColumns,
		uuid.NewString(),
		params.SessionId,
		params.AuthorName,
		params.Text,
		string(mediaJson),
		now,
		now,
	)

	return scanQuestion(row)
}

func (db *PgQARepository) GetQuestionById(ctx context.Context, id string) (Question, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+questionColumns+" FROM questions WHERE id = $1 LIMIT 1",
		id,
	)

	return scanQuestion(row)
}

func (db *PgQARepository) ListQuestions(ctx context.Context, sessionId string, unansweredOnly bool) ([]Question, error) {
	query := "SELECT " + questionColumns + " FROM questions WHERE session_id = $1"
	if unansweredOnly {
		query += " AND is_answered = FALSE"
	}
	query += " ORDER BY created_at ASC"

	rows, err := db.conn.QueryContext(ctx, query, sessionId)
	if err != nil {
		if mapped := mapError(err); mapped == ErrNotFound {
			return []Question{}, nil
		}
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	questions := make([]Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		questions = append(questions, q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return questions, nil
}

func (db *PgQARepository) MarkQuestionAnswered(ctx context.Context, id string) (Question, error) {
	row := db.conn.QueryRowContext(ctx,
		"UPDATE questions SET is_answered = TRUE, "+
			"updated_at = CASE WHEN is_answered THEN updated_at ELSE $2 END "+
			"WHERE id = $1 RETURNING "+questionColumns,
		id,
		time.Now().UTC(),
	)

	return scanQuestion(row)
}

func (db *PgQARepository) UpdateVoteCounts(ctx context.Context, id string, up, down int) (Question, error) {
	row := db.conn.QueryRowContext(ctx,
		"UPDATE questions SET up_votes = $2, down_votes = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING "+questionColumns,
		id,
		up,
		down,
		time.Now().UTC(),
	)

	return scanQuestion(row)
}

func (db *PgQARepository) GetVote(ctx context.Context, questionId, voterName string) (Vote, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+voteColumns+" FROM votes WHERE question_id = $1 AND voter_name = $2 LIMIT 1",
		questionId,
		voterName,
	)

	return scanVote(row)
}

func (db *PgQARepository) CreateVote(ctx context.Context, params CreateVoteParams) (Vote, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO votes (id, question_id, voter_name, type, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+voteColumns,
		uuid.NewString(),
		params.QuestionId,
		params.VoterName,
		params.Type,
		now,
		now,
	)

	return scanVote(row)
}

func (db *PgQARepository) UpdateVoteType(ctx context.Context, id string, voteType VoteType) (Vote, error) {
	row := db.conn.QueryRowContext(ctx,
		"UPDATE votes SET type = $2, updated_at = $3 WHERE id = $1 RETURNING "+voteColumns,
		id,
		voteType,
		time.Now().UTC(),
	)

	return scanVote(row)
}

func (db *PgQARepository) DeleteVote(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM votes WHERE id = $1", id)
	if err != nil {
		return mapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *PgQARepository) CountVotes(ctx context.Context, questionId string, voteType VoteType) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM votes WHERE question_id = $1 AND type = $2",
		questionId,
		voteType,
	).Scan(&n)

	return n, mapError(err)
}
