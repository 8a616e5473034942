package model

import "time"

// Link はプロフィールに並ぶリンク1件を表す。
type Link struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Platform はSNSプラットフォームの正規名。
type Platform string

// 対応プラットフォーム
const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformX         Platform = "x"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformYouTube   Platform = "youtube"
	PlatformGitHub    Platform = "github"
)

// Platforms は表示順に並べた対応プラットフォーム一覧。
var Platforms = []Platform{
	PlatformInstagram,
	PlatformTikTok,
	PlatformX,
	PlatformLinkedIn,
	PlatformYouTube,
	PlatformGitHub,
}

// Known はpが対応プラットフォームかどうかを返す。
func (p Platform) Known() bool {
	for _, k := range Platforms {
		if p == k {
			return true
		}
	}
	return false
}

// SocialLink はSNSアカウントへのリンクを表す。
// Platformはbackend側の表記揺れ（x/twitter）を吸収した正規形。
type SocialLink struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Platform   Platform  `json:"platform"`
	Username   string    `json:"username"`
	URL        string    `json:"url"`
	OrderIndex *int      `json:"order_index"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PublicProfile は /{username} で公開されるプロフィールを表す。
type PublicProfile struct {
	Username  string
	Name      string
	Bio       string
	AvatarURL string
	Theme     *Theme
	Links     []Link
	Socials   []SocialLink
}

// PageMeta は一覧系エンドポイントのページング情報を表す。
type PageMeta struct {
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalPages int    `json:"totalPages"`
	HasPrev    bool   `json:"hasPrev"`
	HasNext    bool   `json:"hasNext"`
	SortBy     string `json:"sortBy"`
	Order      string `json:"order"`
}
