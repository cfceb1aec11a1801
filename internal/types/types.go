package types

import (
	"time"
)

type Session struct {
	Id             string    `json:"id"`
	Url            string    `json:"url"`
	Active         bool      `json:"active"`
	PresenterName  string    `json:"presenterName"`
	PresenterToken string    `json:"presenterToken,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Media struct {
	Type      string `json:"type"`
	Url       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

type Votes struct {
	Up   int `json:"up"`
	Down int `json:"down"`
}

type Question struct {
	Id         string    `json:"id"`
	SessionId  string    `json:"sessionId"`
	AuthorName string    `json:"authorName"`
	Text       string    `json:"text"`
	IsAnswered bool      `json:"isAnswered"`
	Votes      Votes     `json:"votes"`
	Media      []Media   `json:"media,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
