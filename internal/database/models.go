package database

import "time"

type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

func (t VoteType) Valid() bool {
	return t == VoteUp || t == VoteDown
}

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaLink  MediaType = "link"
)

type Session struct {
	Id                  string
	Code                string
	PresenterName       string
	PresenterSecretHash string
	Active              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Media struct {
	Type      MediaType `json:"type"`
	Url       string    `json:"url"`
	Thumbnail string    `json:"thumbnail,omitempty"`
}

type Question struct {
	Id         string
	SessionId  string
	AuthorName string
	Text       string
	IsAnswered bool
	UpVotes    int
	DownVotes  int
	Media      []Media
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Vote struct {
	Id         string
	QuestionId string
	VoterName  string
	Type       VoteType
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type CreateSessionParams struct {
	Code                string
	PresenterName       string
	PresenterSecretHash string
}

type CreateQuestionParams struct {
	SessionId  string
	AuthorName string
	Text       string
	Media      []Media
}

type CreateVoteParams struct {
	QuestionId string
	VoterName  string
	Type       VoteType
}
