// Package model はドメインモデルを定義する。
package model

// Theme は公開プロフィールの表示テーマを表す。
type Theme struct {
	Mode   string `json:"mode"`
	Accent string `json:"accent,omitempty"`
}

// Identity は認証済みユーザーの正規化済みプロフィールを表す。
// バックエンドのフィールド名の揺れ（avatar/avatar_url等）は
// backendパッケージ境界で吸収し、ここには正規形のみを置く。
type Identity struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	Username string  `json:"username"`
	Name     string  `json:"name"`
	Bio      *string `json:"bio"`
	Avatar   *string `json:"avatar"`
	Banner   *string `json:"banner"`
	Theme    *Theme  `json:"theme,omitempty"`
}

// Valid はIdentityが有効かどうかを返す。IDが空のものは未認証として扱う。
func (i *Identity) Valid() bool {
	return i != nil && i.ID != ""
}

// DisplayName はナビゲーションバー等に表示する名前を返す。
// name → username → "User" の順でフォールバックする。
func (i *Identity) DisplayName() string {
	if i == nil {
		return "User"
	}
	if i.Name != "" {
		return i.Name
	}
	if i.Username != "" {
		return i.Username
	}
	return "User"
}

// Clone はIdentityのディープコピーを返す。
// ストア外部にスナップショットを渡す際に内部状態の共有を避ける。
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.Bio = cloneString(i.Bio)
	c.Avatar = cloneString(i.Avatar)
	c.Banner = cloneString(i.Banner)
	if i.Theme != nil {
		t := *i.Theme
		c.Theme = &t
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
