package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/teukusulthan/instacard/internal/model"
	"github.com/teukusulthan/instacard/internal/security"
)

// rawPublicProfile は公開プロフィールのレスポンス表現。
type rawPublicProfile struct {
	Username  string          `json:"username"`
	Name      string          `json:"name"`
	Bio       string          `json:"bio"`
	Avatar    string          `json:"avatar"`
	AvatarURL string          `json:"avatarUrl"`
	Accent    string          `json:"accent"`
	Theme     json.RawMessage `json:"theme"`
	Links     []model.Link    `json:"links"`
	Socials   []rawSocial     `json:"socials"`
}

// PublicProfile は GET /user/public/{username} を呼び、公開プロフィールを返す。
// 存在しないユーザーの場合は ErrNotFound に一致するエラーを返す。
func (c *Client) PublicProfile(ctx context.Context, username string) (*model.PublicProfile, error) {
	resp, err := c.do(ctx, c.httpClient, request{
		method: http.MethodGet,
		path:   "/user/public/" + url.PathEscape(username),
	})
	if err != nil {
		return nil, err
	}
	env, err := decode[rawPublicProfile](resp)
	if err != nil {
		return nil, err
	}

	r := env.Data
	if r.Username == "" {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "profile not found"}
	}

	avatar := r.AvatarURL
	if avatar == "" {
		avatar = r.Avatar
	}
	theme := parseTheme(r.Theme)
	if r.Accent != "" {
		if theme == nil {
			theme = &model.Theme{}
		}
		theme.Accent = r.Accent
	}

	p := &model.PublicProfile{
		Username:  r.Username,
		Name:      r.Name,
		Bio:       security.PlainText(r.Bio),
		AvatarURL: avatar,
		Theme:     theme,
		Links:     make([]model.Link, 0, len(r.Links)),
	}
	for _, l := range r.Links {
		l.Title = security.PlainText(l.Title)
		l.Description = security.PlainText(l.Description)
		if security.ValidateLinkURL(security.NormalizeLinkURL(l.URL)) != nil {
			continue
		}
		l.URL = security.NormalizeLinkURL(l.URL)
		p.Links = append(p.Links, l)
	}
	for _, s := range r.Socials {
		sl, err := s.toModel()
		if err != nil {
			continue
		}
		p.Socials = append(p.Socials, sl)
	}
	return p, nil
}

// PublicSocials は GET /social/public/{username} を呼び、有効なSNSリンクを表示順で返す。
func (c *Client) PublicSocials(ctx context.Context, username string) ([]model.SocialLink, error) {
	resp, err := c.do(ctx, c.httpClient, request{
		method: http.MethodGet,
		path:   "/social/public/" + url.PathEscape(username),
		query:  url.Values{"sort": {"order"}, "order": {"asc"}},
	})
	if err != nil {
		return nil, err
	}
	env, err := decode[[]rawSocial](resp)
	if err != nil {
		return nil, err
	}
	return activeSocials(env.Data), nil
}
