package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/teukusulthan/instacard/internal/model"
)

// CreateLinkPayload はリンク作成の入力。
type CreateLinkPayload struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Links はログイン中ユーザーのリンク一覧を返す。
func (s *Session) Links(ctx context.Context) ([]model.Link, error) {
	resp, err := s.client.do(ctx, s.http, request{
		method: http.MethodGet,
		path:   "/link",
	})
	if err != nil {
		return nil, err
	}
	env, err := decode[[]model.Link](resp)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// CreateLink はリンクを作成する。
func (s *Session) CreateLink(ctx context.Context, p CreateLinkPayload) (*model.Link, error) {
	resp, err := s.client.do(ctx, s.http, request{
		method: http.MethodPost,
		path:   "/link",
		body:   p,
	})
	if err != nil {
		return nil, err
	}
	env, err := decode[model.Link](resp)
	if err != nil {
		return nil, err
	}
	if env.Data.ID == "" {
		return nil, ErrMissingID
	}
	return &env.Data, nil
}

// DeleteLink はリンクを削除する。
func (s *Session) DeleteLink(ctx context.Context, id string) error {
	_, err := s.client.do(ctx, s.http, request{
		method: http.MethodDelete,
		path:   "/link/" + url.PathEscape(id),
	})
	return err
}
