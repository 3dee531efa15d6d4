package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	users  map[string]User
	tokens map[string]Token
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[string]User{}, tokens: map[string]Token{}}
}

func (m *memoryRepo) FindByEmail(_ context.Context, email string) (User, error) {
	u, ok := m.users[email]
	if !ok {
		return User{}, shared.E(shared.CodeNotFound, "user not found")
	}
	return u, nil
}

func (m *memoryRepo) InsertToken(_ context.Context, tok Token) error {
	m.tokens[tok.Token] = tok
	return nil
}

func (m *memoryRepo) ResolveToken(_ context.Context, token string) (Token, User, error) {
	tok, ok := m.tokens[token]
	if !ok {
		return Token{}, User{}, ErrTokenInvalid
	}
	for _, u := range m.users {
		if u.ID == tok.UserID {
			return tok, u, nil
		}
	}
	return Token{}, User{}, ErrTokenInvalid
}

func (m *memoryRepo) DeleteToken(_ context.Context, token string) error {
	delete(m.tokens, token)
	return nil
}

func (m *memoryRepo) DeleteExpiredTokens(_ context.Context) (int64, error) {
	var n int64
	now := time.Now().UTC()
	for k, tok := range m.tokens {
		if tok.ExpiresAt.Before(now) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}

func seedUser(t *testing.T, repo *memoryRepo, id int64, email, password, role string, active bool) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users[email] = User{
		ID: id, Email: email, Name: "Test User", Role: role,
		PasswordHash: string(hash), IsActive: active,
	}
}

func newTestHandler(t *testing.T) (*Handler, *Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, slog.Default())
	return NewHandler(slog.Default(), svc), svc, repo
}

func postLogin(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.login(rr, req)
	return rr
}

func TestLoginIssuesToken(t *testing.T) {
	h, _, repo := newTestHandler(t)
	seedUser(t, repo, 5, "keeper@example.com", "s3cret-pass", shared.RoleStorekeep, true)

	rr := postLogin(h, `{"email":"keeper@example.com","password":"s3cret-pass"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"token"`)
	require.Contains(t, rr.Body.String(), `"role":"storekeeper"`)
	require.Len(t, repo.tokens, 1)
}

func TestLoginWrongPasswordDenied(t *testing.T) {
	h, _, repo := newTestHandler(t)
	seedUser(t, repo, 5, "keeper@example.com", "s3cret-pass", shared.RoleStorekeep, true)

	rr := postLogin(h, `{"email":"keeper@example.com","password":"wrong-pass"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Empty(t, repo.tokens)
}

func TestLoginUnknownEmailSameResponseAsWrongPassword(t *testing.T) {
	h, _, repo := newTestHandler(t)
	seedUser(t, repo, 5, "keeper@example.com", "s3cret-pass", shared.RoleStorekeep, true)

	unknown := postLogin(h, `{"email":"nobody@example.com","password":"s3cret-pass"}`)
	wrong := postLogin(h, `{"email":"keeper@example.com","password":"wrong-pass"}`)
	require.Equal(t, wrong.Code, unknown.Code)
	require.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestLoginInactiveUserDenied(t *testing.T) {
	h, _, repo := newTestHandler(t)
	seedUser(t, repo, 5, "gone@example.com", "s3cret-pass", shared.RoleStorekeep, false)

	rr := postLogin(h, `{"email":"gone@example.com","password":"s3cret-pass"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestLoginValidatesPayload(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rr := postLogin(h, `{"email":"not-an-email","password":"short"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMiddlewareResolvesActor(t *testing.T) {
	_, svc, repo := newTestHandler(t)
	seedUser(t, repo, 8, "boss@example.com", "s3cret-pass", shared.RoleSupervisor, true)
	sess, err := svc.Login(context.Background(), "boss@example.com", "s3cret-pass", "", "")
	require.NoError(t, err)

	var got shared.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ActorFromContext(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	Middleware(svc, false)(next).ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, int64(8), got.ID)
	require.Equal(t, shared.RoleSupervisor, got.Role)
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	_, svc, repo := newTestHandler(t)
	seedUser(t, repo, 8, "boss@example.com", "s3cret-pass", shared.RoleSupervisor, true)
	repo.tokens["stale"] = Token{Token: "stale", UserID: 8, ExpiresAt: time.Now().UTC().Add(-time.Minute)}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})
	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rr := httptest.NewRecorder()
	Middleware(svc, false)(next).ServeHTTP(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMiddlewareHeaderActorsOnlyWhenEnabled(t *testing.T) {
	_, svc, _ := newTestHandler(t)

	var got shared.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ActorFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("X-Actor-ID", "5")
	req.Header.Set("X-Actor-Role", shared.RoleStorekeep)

	Middleware(svc, false)(next).ServeHTTP(httptest.NewRecorder(), req)
	require.Zero(t, got.ID, "headers ignored unless enabled")

	Middleware(svc, true)(next).ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, int64(5), got.ID)
}

func TestRequireActorBlocksAnonymous(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})
	rr := httptest.NewRecorder()
	RequireActor(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/items", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	h, svc, repo := newTestHandler(t)
	seedUser(t, repo, 8, "boss@example.com", "s3cret-pass", shared.RoleSupervisor, true)
	sess, err := svc.Login(context.Background(), "boss@example.com", "s3cret-pass", "", "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rr := httptest.NewRecorder()
	h.logout(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	_, err = svc.Identify(context.Background(), sess.Token)
	require.True(t, shared.IsCode(err, shared.CodeAccessDenied))
}

func TestSweepExpiredRemovesOnlyStaleTokens(t *testing.T) {
	_, svc, repo := newTestHandler(t)
	repo.tokens["stale"] = Token{Token: "stale", UserID: 1, ExpiresAt: time.Now().UTC().Add(-time.Hour)}
	repo.tokens["fresh"] = Token{Token: "fresh", UserID: 1, ExpiresAt: time.Now().UTC().Add(time.Hour)}

	n, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Len(t, repo.tokens, 1)
}
