// Package session はエッジでのセッション検証を提供する。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teukusulthan/instacard/internal/backend"
	"github.com/teukusulthan/instacard/internal/metrics"
	"github.com/teukusulthan/instacard/internal/model"
)

// ErrUnauthenticated は資格情報が無効、または検証できなかったことを示す。
// Verifyが返すエラーはすべてこのエラーとしてerrors.Isに一致する。
var ErrUnauthenticated = errors.New("unauthenticated")

// DefaultTimeout は1回の検証に許す時間。
const DefaultTimeout = 5 * time.Second

// Verifier はセッション資格情報の有効性を判定する。
type Verifier interface {
	Verify(ctx context.Context, credential string) (*model.Identity, error)
}

// IdentityVerifier はバックエンドの検証エンドポイントの部分集合。
// backend.Clientが満たす。
type IdentityVerifier interface {
	Verify(ctx context.Context, cookieHeader string) (*model.Identity, error)
}

// HTTPVerifier はバックエンドの GET /auth/verify で検証するVerifier。
type HTTPVerifier struct {
	backend IdentityVerifier
	timeout time.Duration
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewHTTPVerifier はHTTPVerifierを生成する。
// timeoutが0以下の場合はDefaultTimeoutを使う。
func NewHTTPVerifier(b IdentityVerifier, timeout time.Duration, mc metrics.MetricsCollector, logger *slog.Logger) *HTTPVerifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPVerifier{
		backend: b,
		timeout: timeout,
		metrics: mc,
		logger:  logger,
	}
}

// Verify は資格情報を検証し、有効ならIDを持つIdentityを返す。
// 資格情報が空の場合は通信せずにErrUnauthenticatedを返す。
// 結果はキャッシュしない。
func (v *HTTPVerifier) Verify(ctx context.Context, credential string) (*model.Identity, error) {
	if credential == "" {
		v.metrics.RecordVerify(metrics.VerifyNoCredential, 0)
		return nil, ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	id, err := v.backend.Verify(ctx, credential)
	elapsed := time.Since(start)

	if err == nil && !id.Valid() {
		err = backend.ErrMissingID
	}
	if err != nil {
		v.metrics.RecordVerify(verifyResult(err), elapsed)
		var te *backend.TransportError
		if errors.As(err, &te) {
			v.logger.Warn("session verify transport failure",
				slog.String("error", err.Error()),
				slog.Int64("duration_ms", elapsed.Milliseconds()),
			)
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		v.logger.Debug("session verify rejected",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	v.metrics.RecordVerify(metrics.VerifyOK, elapsed)
	return id, nil
}

func verifyResult(err error) string {
	var te *backend.TransportError
	switch {
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		return metrics.VerifyTransport
	case errors.Is(err, backend.ErrMissingID), errors.Is(err, backend.ErrMalformedResponse):
		return metrics.VerifyMalformed
	default:
		return metrics.VerifyUnauthenticated
	}
}
