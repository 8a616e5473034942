package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/teukusulthan/instacard/internal/model"
)

// ErrUnknownPlatform は対応していないプラットフォーム名を受け取ったことを示す。
var ErrUnknownPlatform = errors.New("unknown social platform")

// バックエンドはxをtwitterと表記する。変換は境界のこの表だけで行う。
var (
	platformToWire = map[model.Platform]string{
		model.PlatformInstagram: "instagram",
		model.PlatformTikTok:    "tiktok",
		model.PlatformX:         "twitter",
		model.PlatformLinkedIn:  "linkedin",
		model.PlatformYouTube:   "youtube",
		model.PlatformGitHub:    "github",
	}
	platformFromWire = map[string]model.Platform{
		"instagram": model.PlatformInstagram,
		"tiktok":    model.PlatformTikTok,
		"twitter":   model.PlatformX,
		"x":         model.PlatformX,
		"linkedin":  model.PlatformLinkedIn,
		"youtube":   model.PlatformYouTube,
		"github":    model.PlatformGitHub,
	}
)

// PlatformToWire はプラットフォームをバックエンド表記に変換する。
func PlatformToWire(p model.Platform) (string, error) {
	w, ok := platformToWire[p]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, p)
	}
	return w, nil
}

// PlatformFromWire はバックエンド表記を正規のプラットフォームに変換する。
func PlatformFromWire(s string) (model.Platform, error) {
	p, ok := platformFromWire[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
	}
	return p, nil
}

// rawSocial はSNSリンクのレスポンス表現。
type rawSocial struct {
	ID         flexibleID `json:"id"`
	UserID     flexibleID `json:"user_id"`
	Platform   string     `json:"platform"`
	Username   string     `json:"username"`
	URL        string     `json:"url"`
	OrderIndex *int       `json:"order_index"`
	IsActive   *bool      `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (r rawSocial) toModel() (model.SocialLink, error) {
	p, err := PlatformFromWire(r.Platform)
	if err != nil {
		return model.SocialLink{}, err
	}
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return model.SocialLink{
		ID:         string(r.ID),
		UserID:     string(r.UserID),
		Platform:   p,
		Username:   r.Username,
		URL:        r.URL,
		OrderIndex: r.OrderIndex,
		IsActive:   active,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

// toSocials は未知のプラットフォームを読み飛ばして変換する。
func toSocials(raws []rawSocial) []model.SocialLink {
	out := make([]model.SocialLink, 0, len(raws))
	for _, r := range raws {
		s, err := r.toModel()
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// activeSocials は有効なものだけをorder_index昇順（未設定は末尾）で返す。
func activeSocials(raws []rawSocial) []model.SocialLink {
	all := toSocials(raws)
	out := all[:0]
	for _, s := range all {
		if s.IsActive {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].OrderIndex, out[j].OrderIndex
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	return out
}

// SocialQuery は GET /social のクエリ。ゼロ値は送らない。
type SocialQuery struct {
	Page  int
	Limit int
	Sort  string // "created" | "order"
	Order string // "asc" | "desc"
}

func (q SocialQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	return v
}

// Socials はログイン中ユーザーのSNSリンク一覧を返す。
func (s *Session) Socials(ctx context.Context, q SocialQuery) ([]model.SocialLink, *model.PageMeta, error) {
	resp, err := s.client.do(ctx, s.http, request{
		method: http.MethodGet,
		path:   "/social",
		query:  q.values(),
	})
	if err != nil {
		return nil, nil, err
	}
	env, err := decode[[]rawSocial](resp)
	if err != nil {
		return nil, nil, err
	}
	return toSocials(env.Data), env.Meta, nil
}

// UpsertSocial はプラットフォームごとに1件のSNSリンクを作成または更新する。
func (s *Session) UpsertSocial(ctx context.Context, p model.Platform, username string) (*model.SocialLink, error) {
	wire, err := PlatformToWire(p)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.do(ctx, s.http, request{
		method: http.MethodPut,
		path:   "/social",
		body: map[string]string{
			"platform": wire,
			"username": strings.TrimSpace(username),
		},
	})
	if err != nil {
		return nil, err
	}
	return decodeSocial(resp)
}

// UpdateSocialOrder はSNSリンクの並び順を変更する。
func (s *Session) UpdateSocialOrder(ctx context.Context, id string, orderIndex int) (*model.SocialLink, error) {
	resp, err := s.client.do(ctx, s.http, request{
		method: http.MethodPatch,
		path:   "/social/" + url.PathEscape(id) + "/order",
		body:   map[string]int{"order_index": orderIndex},
	})
	if err != nil {
		return nil, err
	}
	return decodeSocial(resp)
}

// RestoreSocial は削除済みSNSリンクを復元する。
func (s *Session) RestoreSocial(ctx context.Context, id string) (*model.SocialLink, error) {
	resp, err := s.client.do(ctx, s.http, request{
		method: http.MethodPatch,
		path:   "/social/" + url.PathEscape(id) + "/restore",
	})
	if err != nil {
		return nil, err
	}
	return decodeSocial(resp)
}

// DeleteSocial はSNSリンクを削除する。
func (s *Session) DeleteSocial(ctx context.Context, id string) error {
	_, err := s.client.do(ctx, s.http, request{
		method: http.MethodDelete,
		path:   "/social/" + url.PathEscape(strings.TrimSpace(id)),
	})
	return err
}

func decodeSocial(resp *response) (*model.SocialLink, error) {
	env, err := decode[rawSocial](resp)
	if err != nil {
		return nil, err
	}
	sl, err := env.Data.toModel()
	if err != nil {
		return nil, err
	}
	return &sl, nil
}
