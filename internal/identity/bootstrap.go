package identity

import (
	"context"

	"github.com/teukusulthan/instacard/internal/route"
)

// Bootstrapper はページ表示時に一度だけユーザー情報の取得を起動する。
type Bootstrapper struct {
	store *Store
}

// NewBootstrapper はstoreに紐づくBootstrapperを返す。
func NewBootstrapper(store *Store) *Bootstrapper {
	return &Bootstrapper{store: store}
}

// Run はpathが認証前ページ・公開プロフィールでなく、かつ未起動であれば
// FetchIdentityを呼ぶ。取得を起動した場合にtrueを返す。
// 取得結果はStoreの状態に反映されるため、ここではエラーを返さない。
func (b *Bootstrapper) Run(ctx context.Context, path string) bool {
	switch route.Classify(path) {
	case route.AuthOnly, route.PublicProfile:
		return false
	}
	if !b.store.claimBootstrap() {
		return false
	}
	_, _ = b.store.FetchIdentity(ctx)
	return true
}
