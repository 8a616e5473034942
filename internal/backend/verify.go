package backend

import (
	"context"
	"net/http"

	"github.com/teukusulthan/instacard/internal/model"
)

// Verify はCookieヘッダーをそのまま転送して GET /auth/verify を呼ぶ。
// エッジのルートガード用で、呼び出しごとに独立しキャッシュしない。
// 成功時はdata.idだけを埋めたIdentityを返す。
func (c *Client) Verify(ctx context.Context, cookieHeader string) (*model.Identity, error) {
	resp, err := c.do(ctx, c.httpClient, request{
		method: http.MethodGet,
		path:   "/auth/verify",
		cookie: cookieHeader,
	})
	if err != nil {
		return nil, err
	}
	env, err := decode[rawIdentity](resp)
	if err != nil {
		return nil, err
	}
	return env.Data.normalize()
}
