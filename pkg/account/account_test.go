package account

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"bookstall/internal/ratelimit"
	"bookstall/pkg/status"
	"bookstall/pkg/store"
	"bookstall/pkg/token"
)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *store.MemoryStore, *token.Service) {
	t.Helper()
	st := store.NewMemoryStore()
	tokens, err := token.NewService([]byte("test-secret"))
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	return NewManager(st, tokens, opts...), st, tokens
}

func TestRegisterThenDuplicate(t *testing.T) {
	m, st, _ := newTestManager(t)
	if err := m.Register("u1", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	user, ok, _ := st.GetUser("u1")
	if !ok {
		t.Fatalf("user not stored")
	}
	if user.Balance != 0 {
		t.Fatalf("new user balance must be zero, got %d", user.Balance)
	}
	if user.Token == "" || user.Terminal == "" {
		t.Fatalf("registration must issue a session: %+v", user)
	}
	err := m.Register("u1", "other")
	if code, _ := status.CodeOf(err); code != status.CodeExistUser {
		t.Fatalf("expected duplicate user, got %d (%v)", code, err)
	}
}

func TestLoginIssuesValidToken(t *testing.T) {
	m, st, tokens := newTestManager(t)
	if err := m.Register("u1", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	tok, err := m.Login("u1", "pw", "terminal_a")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	user, _, _ := st.GetUser("u1")
	if user.Token != tok || user.Terminal != "terminal_a" {
		t.Fatalf("token and terminal must be stored together: %+v", user)
	}
	if !tokens.Validate("u1", tok, user.Token) {
		t.Fatalf("fresh login token must validate")
	}
	if err := m.CheckToken("u1", tok); err != nil {
		t.Fatalf("check token: %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	m, _, _ := newTestManager(t)
	if err := m.Register("u1", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	tok, err := m.Login("u1", "wrong", "terminal_a")
	if code, _ := status.CodeOf(err); code != status.CodeAuthorization {
		t.Fatalf("expected authorization failure, got %d (%v)", code, err)
	}
	if tok != "" {
		t.Fatalf("failed login must not issue a token")
	}
}

func TestLoginUnknownUserIsIndistinguishable(t *testing.T) {
	m, _, _ := newTestManager(t)
	if err := m.Register("u1", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, errUnknown := m.Login("ghost", "pw", "t")
	_, errWrongPw := m.Login("u1", "wrong", "t")
	codeA, msgA := status.CodeOf(errUnknown)
	codeB, msgB := status.CodeOf(errWrongPw)
	if codeA != codeB || msgA != msgB {
		t.Fatalf("unknown user and wrong password must look identical: (%d %q) vs (%d %q)",
			codeA, msgA, codeB, msgB)
	}
}

func TestLoginInvalidatesPreviousSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	if err := m.Register("u1", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	first, err := m.Login("u1", "pw", "terminal_a")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, err := m.Login("u1", "pw", "terminal_b"); err != nil {
		t.Fatalf("second login: %v", err)
	}
	if err := m.CheckToken("u1", first); err == nil {
		t.Fatalf("token from the replaced session must be rejected")
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	if err := m.Register("u1", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	tok, err := m.Login("u1", "pw", "terminal_a")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := m.Logout("u1", tok); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := m.CheckToken("u1", tok); err == nil {
		t.Fatalf("logged-out token must be rejected")
	}
	err = m.Logout("u1", tok)
	if code, _ := status.CodeOf(err); code != status.CodeAuthorization {
		t.Fatalf("second logout must fail authorization, got %d (%v)", code, err)
	}
}

func TestChangePasswordForcesRelogin(t *testing.T) {
	m, _, _ := newTestManager(t)
	if err := m.Register("u1", "old"); err != nil {
		t.Fatalf("register: %v", err)
	}
	tok, err := m.Login("u1", "old", "terminal_a")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := m.ChangePassword("u1", "old", "new"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if err := m.CheckToken("u1", tok); err == nil {
		t.Fatalf("pre-change token must be rejected")
	}
	if _, err := m.Login("u1", "old", "t"); err == nil {
		t.Fatalf("old password must no longer work")
	}
	if _, err := m.Login("u1", "new", "t"); err != nil {
		t.Fatalf("new password login: %v", err)
	}
	err = m.ChangePassword("u1", "stale", "whatever")
	if code, _ := status.CodeOf(err); code != status.CodeAuthorization {
		t.Fatalf("wrong old password, got %d (%v)", code, err)
	}
}

func TestUnregister(t *testing.T) {
	m, st, _ := newTestManager(t)
	if err := m.Register("u1", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := m.Unregister("u1", "wrong")
	if code, _ := status.CodeOf(err); code != status.CodeAuthorization {
		t.Fatalf("wrong password, got %d (%v)", code, err)
	}
	if ok, _ := st.UserExists("u1"); !ok {
		t.Fatalf("failed unregister must leave the record intact")
	}
	if err := m.Unregister("u1", "pw"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if ok, _ := st.UserExists("u1"); ok {
		t.Fatalf("user record must be gone")
	}
	// Per uniform policy the follow-up login reports authorization failure,
	// not "user not found".
	_, err = m.Login("u1", "pw", "t")
	if code, _ := status.CodeOf(err); code != status.CodeAuthorization {
		t.Fatalf("login after unregister, got %d (%v)", code, err)
	}
}

func TestLoginRateLimiter(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(redis.Addr(), "", "test:login", 2, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	m, _, _ := newTestManager(t, WithLoginLimiter(limiter))
	if err := m.Register("u1", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := m.Login("u1", "pw", "t"); err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, err := m.Login("u1", "pw", "t"); err != nil {
		t.Fatalf("second login: %v", err)
	}
	_, err = m.Login("u1", "pw", "t")
	if code, _ := status.CodeOf(err); code != status.CodeAuthorization {
		t.Fatalf("throttled login must fail authorization, got %d (%v)", code, err)
	}
}
