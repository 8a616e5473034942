// Package profile はダッシュボードで編集するリンクとSNSリンクの一覧を管理する。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/teukusulthan/instacard/internal/backend"
	"github.com/teukusulthan/instacard/internal/identity"
	"github.com/teukusulthan/instacard/internal/model"
	"github.com/teukusulthan/instacard/internal/optimistic"
	"github.com/teukusulthan/instacard/internal/security"
)

const maxTitleLength = 100

// Backend はプロフィール編集に使うバックエンド操作。*backend.Sessionが満たす。
type Backend interface {
	Links(ctx context.Context) ([]model.Link, error)
	CreateLink(ctx context.Context, p backend.CreateLinkPayload) (*model.Link, error)
	DeleteLink(ctx context.Context, id string) error
	Socials(ctx context.Context, q backend.SocialQuery) ([]model.SocialLink, *model.PageMeta, error)
	UpsertSocial(ctx context.Context, p model.Platform, username string) (*model.SocialLink, error)
	UpdateSocialOrder(ctx context.Context, id string, orderIndex int) (*model.SocialLink, error)
	DeleteSocial(ctx context.Context, id string) error
	RestoreSocial(ctx context.Context, id string) (*model.SocialLink, error)
}

// Store はログイン中ユーザーのリンクとSNSリンクを保持する。
// 削除と並べ替えは楽観的に反映し、失敗したら元に戻す。
type Store struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	links   []model.Link
	socials []model.SocialLink
}

// NewStore は空のStoreを生成する。
func NewStore(b Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: b, logger: logger}
}

// Load はリンクとSNSリンクをバックエンドから読み込む。
func (s *Store) Load(ctx context.Context) error {
	links, err := s.backend.Links(ctx)
	if err != nil {
		return fmt.Errorf("failed to load links: %w", err)
	}
	socials, _, err := s.backend.Socials(ctx, backend.SocialQuery{Sort: "order", Order: "asc"})
	if err != nil {
		return fmt.Errorf("failed to load socials: %w", err)
	}

	s.mu.Lock()
	s.links = links
	s.socials = socials
	s.mu.Unlock()
	return nil
}

// Links はリンク一覧のコピーを返す。
func (s *Store) Links() []model.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Link(nil), s.links...)
}

// Socials はSNSリンク一覧のコピーを返す。
func (s *Store) Socials() []model.SocialLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SocialLink(nil), s.socials...)
}

// AddLink はタイトルとURLを検証してリンクを作成する。
// URLにスキームがなければ https:// を補う。
func (s *Store) AddLink(ctx context.Context, title, rawURL string) (*model.Link, error) {
	title = strings.TrimSpace(title)
	if n := utf8.RuneCountInString(title); n == 0 || n > maxTitleLength {
		return nil, &identity.ValidationError{Field: "title", Message: "Title must be 1-100 characters"}
	}
	u := security.NormalizeLinkURL(rawURL)
	if err := security.ValidateLinkURL(u); err != nil {
		return nil, &identity.ValidationError{Field: "url", Message: "Enter a valid URL"}
	}

	l, err := s.backend.CreateLink(ctx, backend.CreateLinkPayload{Title: title, URL: u})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.links = append(s.links, *l)
	s.mu.Unlock()
	return l, nil
}

// RemoveLink はリンクを削除する。
func (s *Store) RemoveLink(ctx context.Context, id string) error {
	var prev []model.Link
	return optimistic.Apply(ctx,
		func() {
			s.mu.Lock()
			prev = s.links
			s.links = removeLink(s.links, id)
			s.mu.Unlock()
		},
		func() {
			s.mu.Lock()
			s.links = prev
			s.mu.Unlock()
			s.logger.Warn("rolled back link removal", slog.String("link_id", id))
		},
		func(ctx context.Context) error {
			return s.backend.DeleteLink(ctx, id)
		},
	)
}

// UpsertSocial はプラットフォームごとに1件のSNSリンクを作成または更新する。
func (s *Store) UpsertSocial(ctx context.Context, p model.Platform, username string) (*model.SocialLink, error) {
	if !p.Known() {
		return nil, &identity.ValidationError{Field: "platform", Message: "Unsupported platform"}
	}
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, &identity.ValidationError{Field: "username", Message: "Username is required"}
	}

	sl, err := s.backend.UpsertSocial(ctx, p, username)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	replaced := false
	for i := range s.socials {
		if s.socials[i].Platform == sl.Platform {
			s.socials[i] = *sl
			replaced = true
			break
		}
	}
	if !replaced {
		s.socials = append(s.socials, *sl)
	}
	s.mu.Unlock()
	return sl, nil
}

// RemoveSocial はSNSリンクを削除する。
func (s *Store) RemoveSocial(ctx context.Context, id string) error {
	var prev []model.SocialLink
	return optimistic.Apply(ctx,
		func() {
			s.mu.Lock()
			prev = s.socials
			s.socials = removeSocial(s.socials, id)
			s.mu.Unlock()
		},
		func() {
			s.mu.Lock()
			s.socials = prev
			s.mu.Unlock()
			s.logger.Warn("rolled back social removal", slog.String("social_id", id))
		},
		func(ctx context.Context) error {
			return s.backend.DeleteSocial(ctx, id)
		},
	)
}

// RestoreSocial は削除したSNSリンクを復元し、同じプラットフォームの項目を置き換える。
func (s *Store) RestoreSocial(ctx context.Context, id string) (*model.SocialLink, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("social link %q: %w", id, backend.ErrNotFound)
	}

	sl, err := s.backend.RestoreSocial(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.socials = append(removePlatform(s.socials, sl.Platform), *sl)
	s.mu.Unlock()
	return sl, nil
}

// MoveSocial はSNSリンクをindexの位置へ移動する。
// indexは範囲内に丸める。
func (s *Store) MoveSocial(ctx context.Context, id string, index int) error {
	s.mu.Lock()
	from := indexOfSocial(s.socials, id)
	n := len(s.socials)
	s.mu.Unlock()
	if from < 0 {
		return fmt.Errorf("social link %q: %w", id, backend.ErrNotFound)
	}
	index = max(0, min(index, n-1))

	var prev []model.SocialLink
	return optimistic.Apply(ctx,
		func() {
			s.mu.Lock()
			prev = s.socials
			s.socials = moveSocial(s.socials, id, index)
			s.mu.Unlock()
		},
		func() {
			s.mu.Lock()
			s.socials = prev
			s.mu.Unlock()
			s.logger.Warn("rolled back social reorder", slog.String("social_id", id))
		},
		func(ctx context.Context) error {
			_, err := s.backend.UpdateSocialOrder(ctx, id, index)
			return err
		},
	)
}

func removeLink(links []model.Link, id string) []model.Link {
	out := make([]model.Link, 0, len(links))
	for _, l := range links {
		if l.ID != id {
			out = append(out, l)
		}
	}
	return out
}

func removeSocial(socials []model.SocialLink, id string) []model.SocialLink {
	out := make([]model.SocialLink, 0, len(socials))
	for _, sl := range socials {
		if sl.ID != id {
			out = append(out, sl)
		}
	}
	return out
}

func removePlatform(socials []model.SocialLink, p model.Platform) []model.SocialLink {
	out := make([]model.SocialLink, 0, len(socials))
	for _, sl := range socials {
		if sl.Platform != p {
			out = append(out, sl)
		}
	}
	return out
}

func indexOfSocial(socials []model.SocialLink, id string) int {
	for i, sl := range socials {
		if sl.ID == id {
			return i
		}
	}
	return -1
}

// moveSocial は新しいスライスで並べ替え、order_indexを位置に振り直す。
func moveSocial(socials []model.SocialLink, id string, to int) []model.SocialLink {
	from := indexOfSocial(socials, id)
	if from < 0 {
		return socials
	}
	out := make([]model.SocialLink, 0, len(socials))
	out = append(out, socials[:from]...)
	out = append(out, socials[from+1:]...)
	to = max(0, min(to, len(out)))
	moved := socials[from]
	out = append(out[:to], append([]model.SocialLink{moved}, out[to:]...)...)
	for i := range out {
		idx := i
		out[i].OrderIndex = &idx
	}
	return out
}
