package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strictPolicy はすべてのタグを取り除くポリシー。
// bluemondayのPolicyは生成後の並行利用が安全。
var strictPolicy = bluemonday.StrictPolicy()

// PlainText はプロフィールの自由入力欄（bio、リンクタイトル等）から
// マークアップを除去して前後の空白を詰めたテキストを返す。
// html/templateで再度エスケープされるため、エンティティは元に戻す。
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}
