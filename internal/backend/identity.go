package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/teukusulthan/instacard/internal/model"
	"github.com/teukusulthan/instacard/internal/security"
)

// flexibleID は文字列・数値どちらのIDも受け付ける。
type flexibleID string

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// rawIdentity はバックエンドのリビジョン間で揺れるユーザー表現を受ける。
// data直下、またはdata.user配下のどちらにも対応する。
type rawIdentity struct {
	ID        flexibleID      `json:"id"`
	Email     string          `json:"email"`
	Username  string          `json:"username"`
	Name      string          `json:"name"`
	FullName  string          `json:"full_name"`
	Bio       *string         `json:"bio"`
	Avatar    *string         `json:"avatar"`
	AvatarURL *string         `json:"avatar_url"`
	Banner    *string         `json:"banner"`
	BannerURL *string         `json:"banner_url"`
	Theme     json.RawMessage `json:"theme"`
	User      *rawIdentity    `json:"user"`
}

// unwrap はネストしたuserを優先して取り出す。
func (r *rawIdentity) unwrap() *rawIdentity {
	if r == nil {
		return nil
	}
	if r.ID == "" && r.User != nil {
		return r.User.unwrap()
	}
	return r
}

// normalize は正規のmodel.Identityに変換する。IDがなければエラー。
func (r *rawIdentity) normalize() (*model.Identity, error) {
	u := r.unwrap()
	if u == nil || u.ID == "" {
		return nil, ErrMissingID
	}

	name := u.Name
	if name == "" {
		name = u.FullName
	}

	id := &model.Identity{
		ID:       string(u.ID),
		Email:    u.Email,
		Username: u.Username,
		Name:     name,
		Avatar:   firstNonEmpty(u.Avatar, u.AvatarURL),
		Banner:   firstNonEmpty(u.Banner, u.BannerURL),
		Theme:    parseTheme(u.Theme),
	}
	if u.Bio != nil {
		bio := security.PlainText(*u.Bio)
		id.Bio = &bio
	}
	return id, nil
}

func firstNonEmpty(vals ...*string) *string {
	for _, v := range vals {
		if v != nil && strings.TrimSpace(*v) != "" {
			s := strings.TrimSpace(*v)
			return &s
		}
	}
	return nil
}

// parseTheme は "dark" のような文字列と {mode, accent} オブジェクトの両方を受ける。
func parseTheme(raw json.RawMessage) *model.Theme {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var mode string
	if err := json.Unmarshal(raw, &mode); err == nil {
		if mode == "" {
			return nil
		}
		return &model.Theme{Mode: mode}
	}
	var t model.Theme
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil
	}
	if t.Mode == "" && t.Accent == "" {
		return nil
	}
	return &t
}
