package flows

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/tokengate/jwt"
	"github.com/MrEthical07/tokengate/refresh"
)

var (
	errRejected = errors.New("rejected")
	errMissing  = errors.New("missing")
	errDown     = errors.New("down")
)

type memoryRefresh struct {
	mu     sync.Mutex
	now    func() time.Time
	tokens map[string]*refresh.Token
	seq    int
	failOn string
}

func newMemoryRefresh(now func() time.Time) *memoryRefresh {
	return &memoryRefresh{now: now, tokens: map[string]*refresh.Token{}}
}

func (m *memoryRefresh) put(value, owner string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[value] = &refresh.Token{Value: value, OwnerID: owner, ExpiresAt: m.now().Add(ttl), CreatedAt: m.now()}
}

func (m *memoryRefresh) Find(_ context.Context, value string) (*refresh.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "find" {
		return nil, errDown
	}
	rt, ok := m.tokens[value]
	if !ok {
		return nil, refresh.ErrNotFound
	}
	cp := *rt
	return &cp, nil
}

func (m *memoryRefresh) Revoke(_ context.Context, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "revoke" {
		return false, errDown
	}
	rt, ok := m.tokens[value]
	if !ok || rt.IsRevoked {
		return false, nil
	}
	rt.IsRevoked = true
	return true, nil
}

func (m *memoryRefresh) Create(_ context.Context, ownerID string) (*refresh.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "create" {
		return nil, errDown
	}
	m.seq++
	value := ownerID + "-next-" + strconv.Itoa(m.seq)
	rt := &refresh.Token{Value: value, OwnerID: ownerID, ExpiresAt: m.now().Add(time.Hour), CreatedAt: m.now()}
	m.tokens[value] = rt
	cp := *rt
	return &cp, nil
}

func issueStub(o Owner) (IssuedAccess, error) {
	return IssuedAccess{Token: "access-" + o.ID, ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func TestRunLoginSuccess(t *testing.T) {
	store := newMemoryRefresh(time.Now)
	var reset, recorded atomic.Int32
	deps := LoginDeps{
		CheckRate:     func(context.Context, string, string) error { return nil },
		RecordFailure: func(context.Context, string, string) error { return nil },
		ResetRate:     func(context.Context, string) error { reset.Add(1); return nil },
		RecordLogin:   func(context.Context, string) error { recorded.Add(1); return errDown },
		IssueAccess:   issueStub,
		CreateRefresh: store.Create,
		Rejected:      errRejected,
	}
	res := RunLogin(context.Background(), LoginInput{
		Identifier: "a@example.com",
		Authenticate: func(context.Context) (Owner, error) {
			return Owner{ID: "u1", Role: "user", Active: true}, nil
		},
	}, deps)

	if res.Failure != LoginFailureNone {
		t.Fatalf("unexpected failure %v: %v", res.Failure, res.Err)
	}
	if res.Access.Token != "access-u1" || res.Refresh == nil || res.Refresh.OwnerID != "u1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if reset.Load() != 1 || recorded.Load() != 1 {
		t.Fatal("expected throttle reset and last-login record")
	}
}

func TestRunLoginRejectedCountsFailure(t *testing.T) {
	var failures atomic.Int32
	deps := LoginDeps{
		CheckRate: func(context.Context, string, string) error { return nil },
		RecordFailure: func(context.Context, string, string) error {
			if failures.Add(1) > 2 {
				return errors.New("limited")
			}
			return nil
		},
		IssueAccess: issueStub,
		Rejected:    errRejected,
	}
	in := LoginInput{
		Identifier:   "a@example.com",
		Authenticate: func(context.Context) (Owner, error) { return Owner{}, errRejected },
	}

	for i := 0; i < 2; i++ {
		if res := RunLogin(context.Background(), in, deps); res.Failure != LoginFailureRejected {
			t.Fatalf("attempt %d: expected rejected, got %v", i, res.Failure)
		}
	}
	if res := RunLogin(context.Background(), in, deps); res.Failure != LoginFailureRateLimited {
		t.Fatalf("expected rate limited after budget, got %v", res.Failure)
	}
}

func TestRunLoginShortCircuits(t *testing.T) {
	base := LoginDeps{IssueAccess: issueStub, Rejected: errRejected}

	limited := base
	limited.CheckRate = func(context.Context, string, string) error { return errors.New("limited") }
	called := false
	res := RunLogin(context.Background(), LoginInput{
		Identifier:   "x",
		Authenticate: func(context.Context) (Owner, error) { called = true; return Owner{}, nil },
	}, limited)
	if res.Failure != LoginFailureRateLimited || called {
		t.Fatalf("throttled login must not reach the verifier: %+v", res)
	}

	res = RunLogin(context.Background(), LoginInput{
		Authenticate: func(context.Context) (Owner, error) { return Owner{ID: "u", Active: false}, nil },
	}, base)
	if res.Failure != LoginFailureInactive {
		t.Fatalf("expected inactive, got %v", res.Failure)
	}

	res = RunLogin(context.Background(), LoginInput{
		Authenticate: func(context.Context) (Owner, error) { return Owner{}, errDown },
	}, base)
	if res.Failure != LoginFailureDirectory || !errors.Is(res.Err, errDown) {
		t.Fatalf("expected directory failure, got %+v", res)
	}
}

func refreshDeps(store *memoryRefresh, owners map[string]Owner) RefreshDeps {
	return RefreshDeps{
		Store: store,
		Now:   store.now,
		LoadOwner: func(_ context.Context, id string) (Owner, error) {
			o, ok := owners[id]
			if !ok {
				return Owner{}, errMissing
			}
			return o, nil
		},
		IssueAccess:  issueStub,
		OwnerMissing: errMissing,
	}
}

func TestRunRefreshRotatesOnce(t *testing.T) {
	store := newMemoryRefresh(time.Now)
	store.put("r1", "u1", time.Hour)
	deps := refreshDeps(store, map[string]Owner{"u1": {ID: "u1", Role: "user", Active: true}})

	res := RunRefresh(context.Background(), "r1", deps)
	if res.Failure != RefreshFailureNone || res.Refresh == nil || res.Refresh.Value == "r1" {
		t.Fatalf("unexpected first refresh %+v", res)
	}
	if again := RunRefresh(context.Background(), "r1", deps); again.Failure != RefreshFailureInvalid {
		t.Fatalf("rotated token must be invalid, got %v", again.Failure)
	}
	if next := RunRefresh(context.Background(), res.Refresh.Value, deps); next.Failure != RefreshFailureNone {
		t.Fatalf("successor must rotate, got %v", next.Failure)
	}
}

func TestRunRefreshInvalidInputs(t *testing.T) {
	now := time.Now()
	store := newMemoryRefresh(func() time.Time { return now })
	store.put("old", "u1", -time.Second)
	deps := refreshDeps(store, map[string]Owner{"u1": {ID: "u1", Active: true}})

	for _, v := range []string{"", "unknown", "old"} {
		if res := RunRefresh(context.Background(), v, deps); res.Failure != RefreshFailureInvalid {
			t.Fatalf("%q: expected invalid, got %v", v, res.Failure)
		}
	}

	store.failOn = "find"
	if res := RunRefresh(context.Background(), "old", deps); res.Failure != RefreshFailureStore {
		t.Fatalf("expected store failure, got %v", res.Failure)
	}
}

func TestRunRefreshOwnerChecksConsumeToken(t *testing.T) {
	store := newMemoryRefresh(time.Now)
	store.put("gone", "deleted", time.Hour)
	store.put("off", "inactive", time.Hour)
	deps := refreshDeps(store, map[string]Owner{"inactive": {ID: "inactive", Active: false}})

	if res := RunRefresh(context.Background(), "gone", deps); res.Failure != RefreshFailureOwnerMissing {
		t.Fatalf("expected owner missing, got %v", res.Failure)
	}
	if res := RunRefresh(context.Background(), "off", deps); res.Failure != RefreshFailureOwnerInactive {
		t.Fatalf("expected owner inactive, got %v", res.Failure)
	}
	for _, v := range []string{"gone", "off"} {
		rt, _ := store.Find(context.Background(), v)
		if !rt.IsRevoked {
			t.Fatalf("%q must be consumed", v)
		}
	}
}

func TestRunRefreshConcurrentSingleWinner(t *testing.T) {
	store := newMemoryRefresh(time.Now)
	store.put("r1", "u1", time.Hour)
	deps := refreshDeps(store, map[string]Owner{"u1": {ID: "u1", Active: true}})

	const callers = 16
	results := make(chan RefreshResult, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results <- RunRefresh(context.Background(), "r1", deps)
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	wins := 0
	for res := range results {
		switch res.Failure {
		case RefreshFailureNone:
			wins++
		case RefreshFailureRaceLost, RefreshFailureInvalid:
		default:
			t.Fatalf("unexpected failure %v", res.Failure)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if store.seq != 1 {
		t.Fatalf("expected one successor, got %d", store.seq)
	}
}

func TestRunRefreshCreateFailureFailsClosed(t *testing.T) {
	store := newMemoryRefresh(time.Now)
	store.put("r1", "u1", time.Hour)
	store.failOn = "create"
	deps := refreshDeps(store, map[string]Owner{"u1": {ID: "u1", Active: true}})

	if res := RunRefresh(context.Background(), "r1", deps); res.Failure != RefreshFailureCreate {
		t.Fatalf("expected create failure, got %v", res.Failure)
	}
	store.failOn = ""
	if res := RunRefresh(context.Background(), "r1", deps); res.Failure != RefreshFailureInvalid {
		t.Fatalf("presented token must stay revoked, got %v", res.Failure)
	}
}

func TestRunRefreshSigningFailureKeepsToken(t *testing.T) {
	store := newMemoryRefresh(time.Now)
	store.put("r1", "u1", time.Hour)
	deps := refreshDeps(store, map[string]Owner{"u1": {ID: "u1", Active: true}})
	signErr := errors.New("signer unavailable")
	deps.IssueAccess = func(Owner) (IssuedAccess, error) { return IssuedAccess{}, signErr }

	res := RunRefresh(context.Background(), "r1", deps)
	if res.Failure != RefreshFailureIssueAccess || !errors.Is(res.Err, signErr) {
		t.Fatalf("expected signing failure, got %+v", res)
	}
	if store.seq != 0 {
		t.Fatalf("no successor may be created when signing fails, got %d", store.seq)
	}
	if rt, _ := store.Find(context.Background(), "r1"); rt.IsRevoked {
		t.Fatal("presented token must not be consumed when signing fails")
	}

	deps.IssueAccess = issueStub
	if res := RunRefresh(context.Background(), "r1", deps); res.Failure != RefreshFailureNone {
		t.Fatalf("expected retry to rotate, got %v", res.Failure)
	}
}

func TestRunLogoutIsBestEffort(t *testing.T) {
	var warnings atomic.Int32
	var blacklisted atomic.Bool
	deps := LogoutDeps{
		RevokeRefresh:     func(context.Context, string) (bool, error) { return false, errDown },
		RevokeAllForOwner: func(context.Context, string) (int64, error) { return 3, nil },
		Blacklist: func(context.Context, string) error {
			blacklisted.Store(true)
			return nil
		},
		Warn: func(string, ...any) { warnings.Add(1) },
	}

	res := RunLogout(context.Background(), LogoutInput{AccessToken: "a", RefreshToken: "r", OwnerID: "u1"}, deps)
	if !blacklisted.Load() || !res.AccessBlacklisted {
		t.Fatal("blacklist must run after a failed refresh revoke")
	}
	if res.OwnerTokens != 3 || res.RefreshRevoked {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Errors) != 1 || warnings.Load() != 1 {
		t.Fatalf("expected one logged failure, got %d errors %d warnings", len(res.Errors), warnings.Load())
	}

	empty := RunLogout(context.Background(), LogoutInput{}, deps)
	if empty.AccessBlacklisted || len(empty.Errors) != 0 {
		t.Fatalf("empty logout must do nothing, got %+v", empty)
	}
}

func TestExtractBearer(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"BEARER   abc  ", "abc", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
		{"Bearer a b", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		token, ok := ExtractBearer(tc.header)
		if token != tc.token || ok != tc.ok {
			t.Fatalf("ExtractBearer(%q) = %q,%v want %q,%v", tc.header, token, ok, tc.token, tc.ok)
		}
	}
}

func authorizeDeps(revoked map[string]bool, storeErr error) AuthorizeDeps {
	return AuthorizeDeps{
		RequiresAuth: func(p string) bool { return p != "/public" },
		RequiredRoles: func(p string) []string {
			if p == "/admin" {
				return []string{"admin"}
			}
			return nil
		},
		Satisfies: func(role string, required []string) bool {
			if len(required) == 0 || role == "admin" {
				return true
			}
			for _, r := range required {
				if r == role {
					return true
				}
			}
			return false
		},
		IsRevoked: func(_ context.Context, token string) (bool, error) {
			if storeErr != nil {
				return false, storeErr
			}
			return revoked[token], nil
		},
		Verify: func(token string) (*jwt.Claims, error) {
			switch token {
			case "expired":
				return nil, jwt.ErrExpired
			case "forged":
				return nil, jwt.ErrSignatureMismatch
			case "user":
				return &jwt.Claims{OwnerID: "u1", Role: "user"}, nil
			default:
				return nil, jwt.ErrMalformed
			}
		},
	}
}

func TestRunAuthorizeStates(t *testing.T) {
	deps := authorizeDeps(map[string]bool{"blocked": true, "user": false}, nil)
	cases := []struct {
		name    string
		path    string
		header  string
		state   GateState
		failure GateFailureKind
	}{
		{"public", "/public", "", GateAuthorized, GateFailureNone},
		{"missing", "/x", "", GateUnauthenticated, GateFailureNoToken},
		{"revoked", "/x", "Bearer blocked", GateTokenExtracted, GateFailureRevoked},
		{"expired", "/x", "Bearer expired", GateRevocationChecked, GateFailureExpired},
		{"forged", "/x", "Bearer forged", GateRevocationChecked, GateFailureInvalid},
		{"malformed", "/x", "Bearer junk", GateRevocationChecked, GateFailureInvalid},
		{"role", "/admin", "Bearer user", GateSignatureVerified, GateFailureRole},
		{"ok", "/x", "Bearer user", GateAuthorized, GateFailureNone},
		{"dot segments", "/admin/../public", "", GateUnauthenticated, GateFailurePath},
		{"dot segments with token", "/x/../admin", "Bearer user", GateUnauthenticated, GateFailurePath},
		{"trailing slash", "/public/", "", GateUnauthenticated, GateFailurePath},
		{"empty segment", "//public", "", GateUnauthenticated, GateFailurePath},
		{"relative", "public", "", GateUnauthenticated, GateFailurePath},
	}
	for _, tc := range cases {
		res := RunAuthorize(context.Background(), tc.path, tc.header, deps)
		if res.State != tc.state || res.Failure != tc.failure {
			t.Fatalf("%s: got %v/%v want %v/%v", tc.name, res.State, res.Failure, tc.state, tc.failure)
		}
	}

	ok := RunAuthorize(context.Background(), "/x", "Bearer user", deps)
	if ok.Claims == nil || ok.Claims.OwnerID != "u1" || ok.Public {
		t.Fatalf("unexpected authorized result %+v", ok)
	}
}

func TestRunAuthorizeFailsClosedOnStoreError(t *testing.T) {
	verified := false
	deps := authorizeDeps(nil, errDown)
	deps.Verify = func(string) (*jwt.Claims, error) {
		verified = true
		return &jwt.Claims{Role: "admin"}, nil
	}

	res := RunAuthorize(context.Background(), "/x", "Bearer user", deps)
	if res.Failure != GateFailureStore || !errors.Is(res.Err, errDown) {
		t.Fatalf("expected store failure, got %+v", res)
	}
	if verified {
		t.Fatal("gate must stop before verification when revocation is unknown")
	}
}
