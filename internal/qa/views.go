package qa

import (
	"slices"

	"github.com/npezzotti/go-liveqa/internal/database"
	"github.com/npezzotti/go-liveqa/internal/types"
)

// SessionView converts a stored session to its wire form. The token is only
// set in the response to session creation.
func SessionView(s database.Session, presenterToken string) types.Session {
	return types.Session{
		Id:             s.Id,
		Url:            s.Code,
		Active:         s.Active,
		PresenterName:  s.PresenterName,
		PresenterToken: presenterToken,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func QuestionView(q database.Question) types.Question {
	var media []types.Media
	for _, m := range q.Media {
		media = append(media, types.Media{
			Type:      string(m.Type),
			Url:       m.Url,
			Thumbnail: m.Thumbnail,
		})
	}

	return types.Question{
		Id:         q.Id,
		SessionId:  q.SessionId,
		AuthorName: q.AuthorName,
		Text:       q.Text,
		IsAnswered: q.IsAnswered,
		Votes: types.Votes{
			Up:   q.UpVotes,
			Down: q.DownVotes,
		},
		Media:     media,
		CreatedAt: q.CreatedAt,
		UpdatedAt: q.UpdatedAt,
	}
}

// QuestionViews converts and orders questions oldest first.
func QuestionViews(questions []database.Question) []types.Question {
	views := make([]types.Question, 0, len(questions))
	for _, q := range questions {
		views = append(views, QuestionView(q))
	}

	slices.SortStableFunc(views, func(a, b types.Question) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return views
}

func MediaFromView(media []types.Media) []database.Media {
	if len(media) == 0 {
		return nil
	}

	out := make([]database.Media, len(media))
	for i, m := range media {
		out[i] = database.Media{
			Type:      database.MediaType(m.Type),
			Url:       m.Url,
			Thumbnail: m.Thumbnail,
		}
	}

	return out
}
