// Package gate は保護ページの描画可否を判定する。
// エッジのルートガードと同じ分類関数を使い、ガードを経由しない実行でも同じ結論になる。
package gate

import (
	"net/url"

	"github.com/teukusulthan/instacard/internal/identity"
	"github.com/teukusulthan/instacard/internal/route"
)

// Action は描画時の振る舞い。
type Action int

const (
	// Render は子要素をそのまま描画する。
	Render Action = iota
	// Placeholder は解決待ちの間、保護コンテンツを出さずに中立な表示にする。
	Placeholder
	// Redirect はログインページへ遷移させる。
	Redirect
)

// String はActionの文字列表現を返す。
func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Placeholder:
		return "placeholder"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision は判定結果。ActionがRedirectのときのみLocationが入る。
type Decision struct {
	Action   Action
	Location string
}

// Decide はIDストアの状態と現在のURLから描画方法を決める。
func Decide(sel identity.Selector, u *url.URL) Decision {
	path := "/"
	if u != nil && u.Path != "" {
		path = u.Path
	}
	if !route.IsProtected(path) {
		return Decision{Action: Render}
	}

	if !sel.Bootstrapped() || sel.Status() == identity.StatusLoading {
		return Decision{Action: Placeholder}
	}
	if sel.IsAuthenticated() {
		return Decision{Action: Render}
	}
	return Decision{Action: Redirect, Location: route.LoginRedirect(u.RequestURI())}
}
