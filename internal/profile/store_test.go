package profile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teukusulthan/instacard/internal/backend"
	"github.com/teukusulthan/instacard/internal/identity"
	"github.com/teukusulthan/instacard/internal/model"
)

// --- モック定義 ---

type mockBackend struct {
	linksFn        func(ctx context.Context) ([]model.Link, error)
	createLinkFn   func(ctx context.Context, p backend.CreateLinkPayload) (*model.Link, error)
	deleteLinkFn   func(ctx context.Context, id string) error
	socialsFn      func(ctx context.Context, q backend.SocialQuery) ([]model.SocialLink, *model.PageMeta, error)
	upsertFn       func(ctx context.Context, p model.Platform, username string) (*model.SocialLink, error)
	orderFn        func(ctx context.Context, id string, orderIndex int) (*model.SocialLink, error)
	deleteSocialFn func(ctx context.Context, id string) error
	restoreFn      func(ctx context.Context, id string) (*model.SocialLink, error)
	createCalls    int
}

func (m *mockBackend) Links(ctx context.Context) ([]model.Link, error) {
	if m.linksFn != nil {
		return m.linksFn(ctx)
	}
	return nil, nil
}

func (m *mockBackend) CreateLink(ctx context.Context, p backend.CreateLinkPayload) (*model.Link, error) {
	m.createCalls++
	if m.createLinkFn != nil {
		return m.createLinkFn(ctx, p)
	}
	return &model.Link{ID: "new", Title: p.Title, URL: p.URL}, nil
}

func (m *mockBackend) DeleteLink(ctx context.Context, id string) error {
	if m.deleteLinkFn != nil {
		return m.deleteLinkFn(ctx, id)
	}
	return nil
}

func (m *mockBackend) Socials(ctx context.Context, q backend.SocialQuery) ([]model.SocialLink, *model.PageMeta, error) {
	if m.socialsFn != nil {
		return m.socialsFn(ctx, q)
	}
	return nil, nil, nil
}

func (m *mockBackend) UpsertSocial(ctx context.Context, p model.Platform, username string) (*model.SocialLink, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, p, username)
	}
	return &model.SocialLink{ID: "s-" + string(p), Platform: p, Username: username, IsActive: true}, nil
}

func (m *mockBackend) UpdateSocialOrder(ctx context.Context, id string, orderIndex int) (*model.SocialLink, error) {
	if m.orderFn != nil {
		return m.orderFn(ctx, id, orderIndex)
	}
	return &model.SocialLink{ID: id}, nil
}

func (m *mockBackend) DeleteSocial(ctx context.Context, id string) error {
	if m.deleteSocialFn != nil {
		return m.deleteSocialFn(ctx, id)
	}
	return nil
}

func (m *mockBackend) RestoreSocial(ctx context.Context, id string) (*model.SocialLink, error) {
	if m.restoreFn != nil {
		return m.restoreFn(ctx, id)
	}
	return &model.SocialLink{ID: id, IsActive: true}, nil
}

func newTestStore(t *testing.T, b *mockBackend) *Store {
	t.Helper()
	if b.linksFn == nil {
		b.linksFn = func(ctx context.Context) ([]model.Link, error) {
			return []model.Link{{ID: "l1", Title: "Blog"}, {ID: "l2", Title: "Shop"}}, nil
		}
	}
	if b.socialsFn == nil {
		b.socialsFn = func(ctx context.Context, q backend.SocialQuery) ([]model.SocialLink, *model.PageMeta, error) {
			return []model.SocialLink{
				{ID: "s1", Platform: model.PlatformGitHub},
				{ID: "s2", Platform: model.PlatformX},
				{ID: "s3", Platform: model.PlatformYouTube},
			}, nil, nil
		}
	}
	s := NewStore(b, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, s.Load(context.Background()))
	return s
}

func linkIDs(ls []model.Link) []string {
	var out []string
	for _, l := range ls {
		out = append(out, l.ID)
	}
	return out
}

func socialIDs(ss []model.SocialLink) []string {
	var out []string
	for _, s := range ss {
		out = append(out, s.ID)
	}
	return out
}

// --- テスト ---

func TestLoad_RequestsOrderedSocials(t *testing.T) {
	var got backend.SocialQuery
	b := &mockBackend{socialsFn: func(ctx context.Context, q backend.SocialQuery) ([]model.SocialLink, *model.PageMeta, error) {
		got = q
		return nil, nil, nil
	}}
	newTestStore(t, b)
	assert.Equal(t, "order", got.Sort)
	assert.Equal(t, "asc", got.Order)
}

func TestLoad_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	b := &mockBackend{linksFn: func(ctx context.Context) ([]model.Link, error) { return nil, boom }}
	s := NewStore(b, nil)
	assert.ErrorIs(t, s.Load(context.Background()), boom)
}

func TestAddLink_NormalizesURL(t *testing.T) {
	b := &mockBackend{}
	s := newTestStore(t, b)

	l, err := s.AddLink(context.Background(), "  Portfolio  ", "alice.dev")
	require.NoError(t, err)
	assert.Equal(t, "Portfolio", l.Title)
	assert.Equal(t, "https://alice.dev", l.URL)
	assert.Equal(t, []string{"l1", "l2", "new"}, linkIDs(s.Links()))
}

func TestAddLink_Validation(t *testing.T) {
	tests := []struct {
		name  string
		title string
		url   string
		field string
	}{
		{name: "タイトルが空", title: "   ", url: "alice.dev", field: "title"},
		{name: "タイトルが長い", title: string(make([]rune, 101)), url: "alice.dev", field: "title"},
		{name: "javascriptスキーム", title: "x", url: "javascript:alert(1)", field: "url"},
		{name: "ループバック", title: "x", url: "http://127.0.0.1/", field: "url"},
		{name: "localhost", title: "x", url: "localhost:3000", field: "url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &mockBackend{}
			s := newTestStore(t, b)

			_, err := s.AddLink(context.Background(), tt.title, tt.url)
			var ve *identity.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, 0, b.createCalls)
		})
	}
}

func TestRemoveLink_Optimistic(t *testing.T) {
	var during []string
	b := &mockBackend{}
	s := newTestStore(t, b)
	b.deleteLinkFn = func(ctx context.Context, id string) error {
		during = linkIDs(s.Links())
		return nil
	}

	require.NoError(t, s.RemoveLink(context.Background(), "l1"))
	assert.Equal(t, []string{"l2"}, during)
	assert.Equal(t, []string{"l2"}, linkIDs(s.Links()))
}

func TestRemoveLink_RollsBackOnFailure(t *testing.T) {
	boom := errors.New("boom")
	b := &mockBackend{deleteLinkFn: func(ctx context.Context, id string) error { return boom }}
	s := newTestStore(t, b)

	assert.ErrorIs(t, s.RemoveLink(context.Background(), "l1"), boom)
	assert.Equal(t, []string{"l1", "l2"}, linkIDs(s.Links()))
}

func TestUpsertSocial_ReplacesSamePlatform(t *testing.T) {
	b := &mockBackend{upsertFn: func(ctx context.Context, p model.Platform, username string) (*model.SocialLink, error) {
		assert.Equal(t, "alice", username)
		return &model.SocialLink{ID: "s2", Platform: p, Username: username}, nil
	}}
	s := newTestStore(t, b)

	_, err := s.UpsertSocial(context.Background(), model.PlatformX, " @alice ")
	require.NoError(t, err)

	socials := s.Socials()
	assert.Equal(t, []string{"s1", "s2", "s3"}, socialIDs(socials))
	assert.Equal(t, "alice", socials[1].Username)
}

func TestUpsertSocial_AppendsNewPlatform(t *testing.T) {
	s := newTestStore(t, &mockBackend{})

	_, err := s.UpsertSocial(context.Background(), model.PlatformTikTok, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3", "s-tiktok"}, socialIDs(s.Socials()))
}

func TestUpsertSocial_Validation(t *testing.T) {
	s := newTestStore(t, &mockBackend{})

	var ve *identity.ValidationError
	_, err := s.UpsertSocial(context.Background(), model.Platform("myspace"), "alice")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "platform", ve.Field)

	_, err = s.UpsertSocial(context.Background(), model.PlatformGitHub, "  ")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "username", ve.Field)
}

func TestRemoveSocial_RollsBackOnFailure(t *testing.T) {
	boom := errors.New("boom")
	b := &mockBackend{deleteSocialFn: func(ctx context.Context, id string) error { return boom }}
	s := newTestStore(t, b)

	assert.ErrorIs(t, s.RemoveSocial(context.Background(), "s2"), boom)
	assert.Equal(t, []string{"s1", "s2", "s3"}, socialIDs(s.Socials()))
}

func TestRestoreSocial_ReplacesSamePlatform(t *testing.T) {
	b := &mockBackend{restoreFn: func(ctx context.Context, id string) (*model.SocialLink, error) {
		return &model.SocialLink{ID: id, Platform: model.PlatformGitHub, IsActive: true}, nil
	}}
	s := newTestStore(t, b)

	sl, err := s.RestoreSocial(context.Background(), " s9 ")
	require.NoError(t, err)
	assert.Equal(t, "s9", sl.ID)
	assert.Equal(t, []string{"s2", "s3", "s9"}, socialIDs(s.Socials()))
}

func TestRestoreSocial_Errors(t *testing.T) {
	boom := errors.New("boom")
	b := &mockBackend{restoreFn: func(ctx context.Context, id string) (*model.SocialLink, error) { return nil, boom }}
	s := newTestStore(t, b)

	_, err := s.RestoreSocial(context.Background(), "s9")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"s1", "s2", "s3"}, socialIDs(s.Socials()))

	_, err = s.RestoreSocial(context.Background(), "  ")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestMoveSocial_ReordersAndReindexes(t *testing.T) {
	var gotID string
	var gotIndex int
	b := &mockBackend{orderFn: func(ctx context.Context, id string, orderIndex int) (*model.SocialLink, error) {
		gotID, gotIndex = id, orderIndex
		return &model.SocialLink{ID: id}, nil
	}}
	s := newTestStore(t, b)

	require.NoError(t, s.MoveSocial(context.Background(), "s3", 0))
	assert.Equal(t, "s3", gotID)
	assert.Equal(t, 0, gotIndex)

	socials := s.Socials()
	assert.Equal(t, []string{"s3", "s1", "s2"}, socialIDs(socials))
	for i, sl := range socials {
		require.NotNil(t, sl.OrderIndex)
		assert.Equal(t, i, *sl.OrderIndex)
	}
}

func TestMoveSocial_ClampsIndex(t *testing.T) {
	s := newTestStore(t, &mockBackend{})

	require.NoError(t, s.MoveSocial(context.Background(), "s1", 99))
	assert.Equal(t, []string{"s2", "s3", "s1"}, socialIDs(s.Socials()))
}

func TestMoveSocial_RollsBackOnFailure(t *testing.T) {
	boom := errors.New("boom")
	b := &mockBackend{orderFn: func(ctx context.Context, id string, orderIndex int) (*model.SocialLink, error) {
		return nil, boom
	}}
	s := newTestStore(t, b)

	assert.ErrorIs(t, s.MoveSocial(context.Background(), "s3", 0), boom)
	socials := s.Socials()
	assert.Equal(t, []string{"s1", "s2", "s3"}, socialIDs(socials))
	assert.Nil(t, socials[0].OrderIndex)
}

func TestMoveSocial_UnknownID(t *testing.T) {
	s := newTestStore(t, &mockBackend{})
	assert.ErrorIs(t, s.MoveSocial(context.Background(), "nope", 0), backend.ErrNotFound)
}
