package qa

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/npezzotti/go-liveqa/internal/database"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	codeLength          = 6
	codeAlphabet        = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	maxCodeAttempts     = 10
	maxPresenterNameLen = 100
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9]{6}$`)

// SessionCache is an optional read-through cache for lookups by code.
type SessionCache interface {
	Get(ctx context.Context, code string) (database.Session, bool)
	Set(ctx context.Context, s database.Session)
	Delete(ctx context.Context, code string)
}

// CreatedSession is returned once at creation. Secret is the only place the
// clear presenter secret ever appears.
type CreatedSession struct {
	database.Session
	Secret string
}

type SessionStore struct {
	repo  database.QARepository
	cache SessionCache
	log   *zap.Logger
}

func NewSessionStore(repo database.QARepository, cache SessionCache, log *zap.Logger) *SessionStore {
	return &SessionStore{repo: repo, cache: cache, log: log}
}

func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

func generateCode() (string, error) {
	var sb strings.Builder
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	for range codeLength {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		sb.WriteByte(codeAlphabet[n.Int64()])
	}

	return sb.String(), nil
}

func hashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

func (s *SessionStore) Create(ctx context.Context, presenterName, customCode string) (CreatedSession, error) {
	presenterName = strings.TrimSpace(presenterName)
	if presenterName == "" {
		return CreatedSession{}, ValidationError("presenter name is required")
	}
	if utf8.RuneCountInString(presenterName) > maxPresenterNameLen {
		return CreatedSession{}, ValidationError("presenter name must be at most %d characters", maxPresenterNameLen)
	}
	if customCode != "" && !ValidCode(customCode) {
		return CreatedSession{}, ValidationError("code must be %d alphanumeric characters", codeLength)
	}

	secret := uuid.NewString()
	hash, err := hashSecret(secret)
	if err != nil {
		return CreatedSession{}, InternalError(fmt.Errorf("hash secret: %w", err))
	}

	params := database.CreateSessionParams{
		PresenterName:       presenterName,
		PresenterSecretHash: hash,
	}

	if customCode != "" {
		params.Code = customCode
		session, err := s.repo.CreateSession(ctx, params)
		if err != nil {
			if errors.Is(err, database.ErrConflict) {
				return CreatedSession{}, ConflictError("code %q is already in use", customCode)
			}
			return CreatedSession{}, InternalError(fmt.Errorf("create session: %w", err))
		}
		return CreatedSession{Session: session, Secret: secret}, nil
	}

	for range maxCodeAttempts {
		code, err := generateCode()
		if err != nil {
			return CreatedSession{}, InternalError(fmt.Errorf("generate code: %w", err))
		}

		params.Code = code
		session, err := s.repo.CreateSession(ctx, params)
		if err == nil {
			return CreatedSession{Session: session, Secret: secret}, nil
		}
		if !errors.Is(err, database.ErrConflict) {
			return CreatedSession{}, InternalError(fmt.Errorf("create session: %w", err))
		}

		s.log.Debug("session code collision", zap.String("code", code))
	}

	return CreatedSession{}, InternalError(fmt.Errorf("no unused code after %d attempts", maxCodeAttempts))
}

func (s *SessionStore) GetByCode(ctx context.Context, code string) (database.Session, error) {
	if s.cache != nil {
		if session, ok := s.cache.Get(ctx, code); ok {
			return session, nil
		}
	}

	session, err := s.repo.GetSessionByCode(ctx, code)
	if err != nil {
		return database.Session{}, mapRepoError("session", err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, session)
	}

	return session, nil
}

func (s *SessionStore) GetById(ctx context.Context, id string) (database.Session, error) {
	session, err := s.repo.GetSessionById(ctx, id)
	if err != nil {
		return database.Session{}, mapRepoError("session", err)
	}

	return session, nil
}

// End marks the session inactive. Ending an ended session returns it
// unchanged.
func (s *SessionStore) End(ctx context.Context, id string) (database.Session, error) {
	session, err := s.repo.EndSession(ctx, id)
	if err != nil {
		return database.Session{}, mapRepoError("session", err)
	}

	if s.cache != nil {
		s.cache.Delete(ctx, session.Code)
	}

	return session, nil
}

// ValidatePresenterSecret reports whether secret belongs to the session. A
// missing session is not an error.
func (s *SessionStore) ValidatePresenterSecret(ctx context.Context, sessionId, secret string) (bool, error) {
	if sessionId == "" || secret == "" {
		return false, nil
	}

	session, err := s.repo.GetSessionById(ctx, sessionId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return false, nil
		}
		return false, InternalError(fmt.Errorf("get session: %w", err))
	}

	err = bcrypt.CompareHashAndPassword([]byte(session.PresenterSecretHash), []byte(secret))
	return err == nil, nil
}

func mapRepoError(what string, err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return NotFoundError(what)
	case errors.Is(err, database.ErrConflict):
		return ConflictError("%s already exists", what)
	default:
		return InternalError(err)
	}
}
