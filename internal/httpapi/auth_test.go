package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/logger"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	lists   int
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func (s *userStoreStub) setActive(username string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Active = active
	s.users[username] = user
}

func plainAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Date(2026, 1, 5, 7, 0, 0, 0, time.UTC),
			},
		},
	}
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManager(t *testing.T, secret string, users UserStore, clock *stepClock) *AuthManager {
	t.Helper()
	cfg := AuthConfig{
		Secret:          secret,
		TokenTTL:        time.Hour,
		RefreshInterval: time.Minute,
		Logger:          logrus.NewEntry(logger.Discard()),
	}
	if clock != nil {
		cfg.Now = clock.Now
	}
	manager, err := NewAuthManager(context.Background(), cfg, users)
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}
	return manager
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := plainAdminStore()
	ctx := context.Background()

	manager := newManager(t, "test-secret", users, nil)
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored := users.users["admin"]
	if !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", stored.Password)
	}
	if users.updates != 1 {
		t.Fatalf("expected the upgraded hash to be written back once, got %d", users.updates)
	}
}

func TestCredentialCacheReloadsOnIntervalNotEveryLogin(t *testing.T) {
	users := plainAdminStore()
	clock := &stepClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	manager := newManager(t, "test-secret", users, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
			t.Fatalf("login %d failed: %v", i+1, err)
		}
	}
	if users.lists != 1 {
		t.Fatalf("logins inside the refresh interval should use the cache, got %d loads", users.lists)
	}

	hash, err := hashPassword("oven-42")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := users.CreateUser(ctx, domain.UserAccount{Username: "baker09", Password: hash, Role: domain.RoleOperator, Active: true}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "baker09", Password: "oven-42"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("unknown user right after a load should not reload, got %v", err)
	}

	clock.Advance(2 * time.Second)
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "baker09", Password: "oven-42"}); err != nil {
		t.Fatalf("user added elsewhere should sign in after a miss reload: %v", err)
	}
	if users.lists != 2 {
		t.Fatalf("expected one reload on miss, got %d loads", users.lists)
	}

	token, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("admin login failed: %v", err)
	}
	users.setActive("admin", false)
	clock.Advance(2 * time.Minute)

	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"}); !errors.Is(err, errAccountInactive) {
		t.Fatalf("expected deactivation to be seen after the interval, got %v", err)
	}
	if users.lists != 3 {
		t.Fatalf("expected a stale reload, got %d loads", users.lists)
	}
	if _, err := manager.ParseToken(token.AccessToken); !errors.Is(err, errAccountInactive) {
		t.Fatalf("token of a deactivated account should be refused, got %v", err)
	}
}

func TestCreateOperatorStoresPasswordHash(t *testing.T) {
	users := plainAdminStore()
	ctx := context.Background()

	manager := newManager(t, "test-secret", users, nil)
	operator, err := manager.CreateOperator(ctx, domain.OperatorCreateRequest{
		Username: "Baker01",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create operator failed: %v", err)
	}
	if operator.Username != "baker01" || operator.Role != domain.RoleOperator {
		t.Fatalf("unexpected operator %+v", operator)
	}

	saved, ok := users.users["baker01"]
	if !ok {
		t.Fatalf("expected operator to be saved")
	}
	if !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", saved.Password)
	}

	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "baker01", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login with new operator failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "baker01" || actor.Role != domain.RoleOperator {
		t.Fatalf("unexpected actor %+v", actor)
	}

	listed := manager.ListOperators(ctx)
	if len(listed) != 1 || listed[0].Username != "baker01" {
		t.Fatalf("expected only the operator to be listed, got %+v", listed)
	}
}

func TestCreateOperatorRejectsDuplicateAndShortInput(t *testing.T) {
	ctx := context.Background()
	manager := newManager(t, "test-secret", plainAdminStore(), nil)

	if _, err := manager.CreateOperator(ctx, domain.OperatorCreateRequest{Username: "admin", Password: "pass1234"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for existing username, got %v", err)
	}
	if _, err := manager.CreateOperator(ctx, domain.OperatorCreateRequest{Username: "abc", Password: "pass1234"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for short username, got %v", err)
	}
	if _, err := manager.CreateOperator(ctx, domain.OperatorCreateRequest{Username: "baker02", Password: "123"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for short password, got %v", err)
	}
}

func TestParseTokenRejectsForeignSecretAndExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &stepClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	issuer := newManager(t, "secret-one", plainAdminStore(), clock)
	verifier := newManager(t, "secret-two", plainAdminStore(), clock)

	resp, err := issuer.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
	if _, err := issuer.ParseToken(resp.AccessToken); err != nil {
		t.Fatalf("issuer should accept its own token: %v", err)
	}

	clock.Advance(time.Hour + time.Minute)
	if _, err := issuer.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token past its ttl to be rejected")
	}
}
