// Package identity はページ表示ごとのユーザー情報の状態管理を提供する。
//
// Storeはidle → loading → authenticated / error の状態遷移を持つ。
// 状態はStore自身の操作でのみ変更され、UIはSelector経由で読み取る。
package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/teukusulthan/instacard/internal/backend"
	"github.com/teukusulthan/instacard/internal/metrics"
	"github.com/teukusulthan/instacard/internal/model"
	"github.com/teukusulthan/instacard/internal/route"
)

// DefaultThrottle は再取得の最小間隔。
const DefaultThrottle = 3 * time.Second

// 状態に表示する既定のエラー文言
const (
	msgFetchFailed   = "Failed to fetch user"
	msgLoginFailed   = "Login failed"
	msgUnreachable   = "Failed to reach server"
	outcomeOK        = "ok"
	outcomeNoID      = "missing_id"
	outcomeUnauth    = "unauthorized"
	outcomeError     = "error"
	outcomeTransport = "transport"
)

// Status はユーザー情報の解決状態。
type Status string

// 状態一覧
const (
	StatusIdle          Status = "idle"
	StatusLoading       Status = "loading"
	StatusAuthenticated Status = "authenticated"
	StatusError         Status = "error"
)

// State はStoreが保持する状態のスナップショット。
// Status == StatusAuthenticated のときに限りIdentityが非nilになる。
type State struct {
	Identity      *model.Identity
	Status        Status
	Error         string
	LastFetchedAt *time.Time
}

func (s State) clone() State {
	c := s
	c.Identity = s.Identity.Clone()
	if s.LastFetchedAt != nil {
		t := *s.LastFetchedAt
		c.LastFetchedAt = &t
	}
	return c
}

// Backend はStoreが使うバックエンド操作。*backend.Sessionが満たす。
type Backend interface {
	Me(ctx context.Context) (*model.Identity, error)
	Login(ctx context.Context, p backend.LoginPayload) ([]*http.Cookie, error)
	Logout(ctx context.Context) ([]*http.Cookie, error)
}

// Selector はStoreの読み取り専用ビュー。
type Selector interface {
	Snapshot() State
	Identity() *model.Identity
	Status() Status
	Err() string
	IsAuthenticated() bool
	Bootstrapped() bool
}

// Options はStoreの設定。ゼロ値のフィールドには既定値を使う。
type Options struct {
	// Throttle は再取得の最小間隔。0以下ならDefaultThrottle。
	Throttle time.Duration
	// Location は現在表示中のパスを返す。nilなら "/" とみなす。
	Location func() string
	// Now は現在時刻を返す。
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics metrics.MetricsCollector
}

// call は実行中の取得1件。後から来た呼び出しはdoneを待って結果を共有する。
type call struct {
	done chan struct{}
	id   *model.Identity
	err  error
}

// Store はユーザー情報の状態コンテナ。
// すべての遷移はmuの下でIdentityとStatusを同時に更新する。
type Store struct {
	backend  Backend
	throttle time.Duration
	location func() string
	now      func() time.Time
	logger   *slog.Logger
	metrics  metrics.MetricsCollector

	mu           sync.Mutex
	state        State
	bootstrapped bool
	// gen はLogin/Logout/Resetで進む。開始時と異なる取得結果は破棄する。
	gen      uint64
	inflight *call

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// NewStore はidle状態のStoreを生成する。
func NewStore(b Backend, opts Options) *Store {
	s := &Store{
		backend:  b,
		throttle: opts.Throttle,
		location: opts.Location,
		now:      opts.Now,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		state:    State{Status: StatusIdle},
		subs:     make(map[int]func(State)),
	}
	if s.throttle <= 0 {
		s.throttle = DefaultThrottle
	}
	if s.location == nil {
		s.location = func() string { return "/" }
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	return s
}

// FetchIdentity は GET /user/me でユーザー情報を取得し状態に反映する。
//
// 現在のページが認証前ページならErrSkippedOnAuthPage、前回の完了から
// スロットル期間内ならErrThrottledを返し、どちらも通信も状態変更もしない。
// 取得中に呼ばれた場合は実行中の取得に合流する。
func (s *Store) FetchIdentity(ctx context.Context) (*model.Identity, error) {
	s.mu.Lock()
	if route.Classify(s.location()) == route.AuthOnly {
		s.mu.Unlock()
		s.metrics.RecordIdentityFetch("skipped")
		return nil, ErrSkippedOnAuthPage
	}
	if c := s.inflight; c != nil {
		s.mu.Unlock()
		return c.wait(ctx)
	}
	if last := s.state.LastFetchedAt; last != nil && s.now().Sub(*last) < s.throttle {
		s.mu.Unlock()
		s.metrics.RecordIdentityFetch("throttled")
		return nil, ErrThrottled
	}

	c := &call{done: make(chan struct{})}
	s.inflight = c
	gen := s.gen
	snap := s.setLocked(State{
		Status:        StatusLoading,
		LastFetchedAt: s.state.LastFetchedAt,
	})
	s.mu.Unlock()
	s.notify(snap)

	id, err := s.backend.Me(ctx)
	if err == nil && !id.Valid() {
		err = backend.ErrMissingID
	}
	s.complete(c, gen, id, err)
	return c.id.Clone(), c.err
}

// complete は取得結果を状態に反映してcallを閉じる。
func (s *Store) complete(c *call, gen uint64, id *model.Identity, err error) {
	if err != nil {
		id = nil
	}
	now := s.now()

	s.mu.Lock()
	if s.inflight == c {
		s.inflight = nil
	}
	if gen != s.gen {
		s.mu.Unlock()
		c.err = ErrSuperseded
		close(c.done)
		s.metrics.RecordIdentityFetch("superseded")
		s.logger.Debug("discarding superseded identity fetch")
		return
	}

	var next State
	var outcome string
	switch {
	case err == nil:
		next = State{Identity: id.Clone(), Status: StatusAuthenticated, LastFetchedAt: &now}
		outcome = outcomeOK
	case errors.Is(err, backend.ErrUnauthorized):
		next = State{Status: StatusIdle, LastFetchedAt: &now}
		outcome = outcomeUnauth
	default:
		next = State{Status: StatusError, Error: failureMessage(err, msgFetchFailed), LastFetchedAt: &now}
		outcome = failureOutcome(err)
	}
	snap := s.setLocked(next)
	s.mu.Unlock()

	c.id, c.err = id, err
	close(c.done)

	s.metrics.RecordIdentityFetch(outcome)
	s.logOutcome("identity fetch", outcome, err)
	s.notify(snap)
}

func (c *call) wait(ctx context.Context) (*model.Identity, error) {
	select {
	case <-c.done:
		return c.id.Clone(), c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	// Identity はログイン直後に取得できたユーザー情報。IdentityKnownがfalseならnil。
	Identity      *model.Identity
	IdentityKnown bool
	// Cookies はバックエンドが発行したSet-Cookie。ブラウザへ転送する。
	Cookies []*http.Cookie
}

// Login は入力を検証してからバックエンドにログインし、続けてユーザー情報を取得する。
//
// 検証エラーは*ValidationErrorで、通信も状態変更もしない。
// ログイン後の取得失敗はログイン自体を失敗させず、IdentityKnown=falseのidle状態にする。
// ログイン失敗時は*LoginErrorを返し、状態をerrorにする。
func (s *Store) Login(ctx context.Context, p backend.LoginPayload) (*LoginResult, error) {
	if err := ValidateLogin(p); err != nil {
		s.metrics.RecordLogin("invalid")
		return nil, err
	}

	s.mu.Lock()
	gen := s.advanceLocked()
	snap := s.setLocked(State{Status: StatusLoading, LastFetchedAt: s.state.LastFetchedAt})
	s.mu.Unlock()
	s.notify(snap)

	cookies, err := s.backend.Login(ctx, p)
	if err != nil {
		msg := failureMessage(err, msgLoginFailed)
		if !s.commit(gen, State{Status: StatusError, Error: msg}) {
			return nil, ErrSuperseded
		}
		outcome := "rejected"
		var te *backend.TransportError
		if errors.As(err, &te) {
			outcome = outcomeTransport
		}
		s.metrics.RecordLogin(outcome)
		s.logOutcome("login", outcome, err)
		return nil, &LoginError{Message: msg, Err: err}
	}

	id, err := s.backend.Me(ctx)
	if err == nil && !id.Valid() {
		err = backend.ErrMissingID
	}
	if err != nil {
		if !s.commit(gen, State{Status: StatusIdle}) {
			return nil, ErrSuperseded
		}
		s.metrics.RecordLogin("identity_unknown")
		s.logger.Info("logged in but identity fetch failed", slog.String("error", err.Error()))
		return &LoginResult{Cookies: cookies}, nil
	}

	now := s.now()
	if !s.commit(gen, State{Identity: id.Clone(), Status: StatusAuthenticated, LastFetchedAt: &now}) {
		return nil, ErrSuperseded
	}
	s.metrics.RecordLogin("success")
	return &LoginResult{Identity: id.Clone(), IdentityKnown: true, Cookies: cookies}, nil
}

// Logout は状態を初期化してからバックエンドのログアウトを呼ぶ。
// バックエンドの失敗はwarnで記録して握りつぶす。
// 戻り値はブラウザへ転送するSet-Cookie。
func (s *Store) Logout(ctx context.Context) []*http.Cookie {
	s.mu.Lock()
	s.advanceLocked()
	snap := s.setLocked(State{Status: StatusIdle})
	s.mu.Unlock()
	s.notify(snap)

	cookies, err := s.backend.Logout(ctx)
	if err != nil {
		s.logger.Warn("backend logout failed", slog.String("error", err.Error()))
	}
	return cookies
}

// Reset は状態とbootstrappedフラグを初期化する。
func (s *Store) Reset() {
	s.mu.Lock()
	s.advanceLocked()
	s.bootstrapped = false
	snap := s.setLocked(State{Status: StatusIdle})
	s.mu.Unlock()
	s.notify(snap)
}

// advanceLocked は世代を進め、実行中の取得を切り離す。
func (s *Store) advanceLocked() uint64 {
	s.gen++
	s.inflight = nil
	return s.gen
}

// commit は世代が変わっていなければ状態を更新する。
func (s *Store) commit(gen uint64, next State) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	snap := s.setLocked(next)
	s.mu.Unlock()
	s.notify(snap)
	return true
}

func (s *Store) setLocked(next State) State {
	s.state = next
	return next.clone()
}

// claimBootstrap は未ブートストラップであればフラグを立ててtrueを返す。
func (s *Store) claimBootstrap() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bootstrapped {
		return false
	}
	s.bootstrapped = true
	return true
}

// Snapshot は現在の状態のコピーを返す。
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Identity は現在のユーザー情報のコピーを返す。
func (s *Store) Identity() *model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Identity.Clone()
}

// Status は現在の状態を返す。
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status
}

// Err は状態のエラー文言を返す。
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Error
}

// IsAuthenticated は認証済みかどうかを返す。
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status == StatusAuthenticated && s.state.Identity.Valid()
}

// Bootstrapped は初回取得を起動済みかどうかを返す。
func (s *Store) Bootstrapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bootstrapped
}

// Subscribe は状態変化ごとに呼ばれるリスナーを登録し、解除関数を返す。
// リスナーはロック外で呼ばれるためStoreを読み取ってよい。
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notify(st State) {
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(st.clone())
	}
}

func (s *Store) logOutcome(op, outcome string, err error) {
	switch outcome {
	case outcomeOK:
	case outcomeUnauth, "rejected":
		s.logger.Debug(op+" unauthenticated", slog.String("error", err.Error()))
	case outcomeTransport:
		s.logger.Warn(op+" transport failure", slog.String("error", err.Error()))
	default:
		s.logger.Error(op+" failed", slog.String("error", err.Error()))
	}
}

// failureMessage は状態に載せる文言を決める。
func failureMessage(err error, fallback string) string {
	var te *backend.TransportError
	if errors.As(err, &te) {
		return msgUnreachable
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

func failureOutcome(err error) string {
	var te *backend.TransportError
	switch {
	case errors.As(err, &te):
		return outcomeTransport
	case errors.Is(err, backend.ErrMissingID):
		return outcomeNoID
	default:
		return outcomeError
	}
}
