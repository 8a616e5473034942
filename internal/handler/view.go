package handler

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/teukusulthan/instacard/internal/model"
)

var absoluteURLPattern = regexp.MustCompile(`(?i)^https?://`)

// ImageURL は画像パスを表示用URLに変換する。
// 絶対http(s)URLはそのまま返し、それ以外は {base}/user/avatar/{value} にする。
func ImageURL(base, value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	if absoluteURLPattern.MatchString(v) {
		return v
	}
	return strings.TrimRight(base, "/") + "/user/avatar/" + v
}

// initials は名前の先頭2語の頭文字を返す。
func initials(name string) string {
	var b strings.Builder
	for i, w := range strings.Fields(name) {
		if i == 2 {
			break
		}
		r, _ := utf8.DecodeRuneInString(w)
		b.WriteRune(unicode.ToUpper(r))
	}
	if b.Len() == 0 {
		return "U"
	}
	return b.String()
}

// navData はダッシュボードのナビゲーションバーに表示する情報。
type navData struct {
	Handle      string
	DisplayName string
	AvatarURL   string
	Initials    string
}

func newNavData(id *model.Identity, imageBase string) *navData {
	n := &navData{DisplayName: id.DisplayName()}
	if id != nil {
		n.Handle = id.Username
		if id.Avatar != nil {
			n.AvatarURL = ImageURL(imageBase, *id.Avatar)
		}
	}
	n.Initials = initials(n.DisplayName)
	return n
}

// themeMode はテーマ未設定をdarkとして扱う。
func themeMode(t *model.Theme) string {
	if t != nil && t.Mode == "light" {
		return "light"
	}
	return "dark"
}

// profileView は公開プロフィールページの表示データ。
type profileView struct {
	Username    string
	DisplayName string
	Bio         string
	AvatarURL   string
	Initials    string
	Links       []model.Link
	Socials     []model.SocialLink
}

func newProfileView(p *model.PublicProfile, socials []model.SocialLink, imageBase string) profileView {
	name := p.Name
	if name == "" {
		name = p.Username
	}
	return profileView{
		Username:    p.Username,
		DisplayName: name,
		Bio:         p.Bio,
		AvatarURL:   ImageURL(imageBase, p.AvatarURL),
		Initials:    initials(name),
		Links:       p.Links,
		Socials:     socials,
	}
}
