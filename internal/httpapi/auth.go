package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
	"github.com/fnsdeividy/base-arch-sub000/internal/xid"
)

const (
	tokenIssuer = "costing"
	// missReloadGap bounds how often an unknown username can force a reload.
	missReloadGap = time.Second
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errAccountInactive    = errors.New("account is inactive")
)

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthConfig zero values fall back to an 8h token and a one minute refresh.
type AuthConfig struct {
	Secret          string
	TokenTTL        time.Duration
	RefreshInterval time.Duration
	Now             func() time.Time
	Logger          *logrus.Entry
}

// AuthManager issues HS256 tokens against a credential cache loaded from
// the user store. The cache reloads once RefreshInterval has passed, or on
// an unknown username so accounts made by another instance can sign in.
type AuthManager struct {
	secret       []byte
	tokenTTL     time.Duration
	refreshEvery time.Duration
	now          func() time.Time
	log          *logrus.Entry
	userStore    UserStore

	mu       sync.RWMutex
	accounts map[string]account
	loadedAt time.Time
}

type account struct {
	hash    string
	role    string
	active  bool
	created time.Time
}

type costingClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(ctx context.Context, cfg AuthConfig, userStore UserStore) (*AuthManager, error) {
	secret := cfg.Secret
	if secret == "" {
		secret = "dev-change-me"
	}
	m := &AuthManager{
		secret:       []byte(secret),
		tokenTTL:     cfg.TokenTTL,
		refreshEvery: cfg.RefreshInterval,
		now:          cfg.Now,
		log:          cfg.Logger,
		userStore:    userStore,
		accounts:     make(map[string]account),
	}
	if m.tokenTTL <= 0 {
		m.tokenTTL = 8 * time.Hour
	}
	if m.refreshEvery <= 0 {
		m.refreshEvery = time.Minute
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	if m.log == nil {
		m.log = logrus.NewEntry(logrus.StandardLogger())
	}
	m.log = m.log.WithField("module", "auth")

	if err := m.reload(ctx); err != nil {
		return nil, fmt.Errorf("load user accounts: %w", err)
	}
	return m, nil
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := normalizeUsername(req.Username)
	acct, ok := a.lookup(ctx, username)
	if !ok || !verifyPassword(acct.hash, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !acct.active {
		return domain.LoginResponse{}, errAccountInactive
	}

	issuedAt := a.now()
	expiresAt := issuedAt.Add(a.tokenTTL)
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, costingClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        xid.New("tok"),
			Subject:   username,
			Issuer:    tokenIssuer,
			IssuedAt:  jwtlib.NewNumericDate(issuedAt),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: acct.role,
	}).SignedString(a.secret)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        acct.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// ParseToken validates signature, issuer and expiry. A subject the cache
// knows as deactivated is refused even while its token is unexpired.
func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	claims := &costingClaims{}
	_, err := jwtlib.ParseWithClaims(raw, claims, func(*jwtlib.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithTimeFunc(a.now),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("invalid or expired token: %w", err)
	}
	if claims.Subject == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}

	a.mu.RLock()
	acct, known := a.accounts[claims.Subject]
	a.mu.RUnlock()
	if known && !acct.active {
		return domain.Actor{}, errAccountInactive
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

func (a *AuthManager) CreateOperator(ctx context.Context, req domain.OperatorCreateRequest) (domain.OperatorUser, error) {
	username := normalizeUsername(req.Username)
	switch {
	case len(username) < 4:
		return domain.OperatorUser{}, fmt.Errorf("%w: username must be at least 4 characters", store.ErrInvalidInput)
	case strings.ContainsAny(username, " \t\r\n"):
		return domain.OperatorUser{}, fmt.Errorf("%w: username must not contain spaces", store.ErrInvalidInput)
	case len(strings.TrimSpace(req.Password)) < 6:
		return domain.OperatorUser{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidInput)
	}
	if _, exists := a.lookup(ctx, username); exists {
		return domain.OperatorUser{}, fmt.Errorf("%w: username already exists", store.ErrConflict)
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.OperatorUser{}, fmt.Errorf("hash password: %w", err)
	}
	created := a.now()
	if a.userStore != nil {
		err := a.userStore.CreateUser(ctx, domain.UserAccount{
			Username:  username,
			Password:  hash,
			Role:      domain.RoleOperator,
			Active:    true,
			CreatedAt: created,
		})
		if err != nil {
			return domain.OperatorUser{}, err
		}
	}

	acct := account{hash: hash, role: domain.RoleOperator, active: true, created: created}
	a.mu.Lock()
	a.accounts[username] = acct
	a.mu.Unlock()
	a.log.WithField("username", username).Info("operator created")

	return operatorView(username, acct), nil
}

func (a *AuthManager) ListOperators(ctx context.Context) []domain.OperatorUser {
	if a.stale() {
		if err := a.reload(ctx); err != nil {
			a.log.WithError(err).Warn("user reload failed, listing cached accounts")
		}
	}

	a.mu.RLock()
	out := make([]domain.OperatorUser, 0, len(a.accounts))
	for username, acct := range a.accounts {
		if acct.role == domain.RoleOperator {
			out = append(out, operatorView(username, acct))
		}
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// lookup serves from the cache, reloading when it is stale or when the
// username is missing and the last reload is older than missReloadGap.
func (a *AuthManager) lookup(ctx context.Context, username string) (account, bool) {
	a.mu.RLock()
	acct, ok := a.accounts[username]
	age := a.now().Sub(a.loadedAt)
	a.mu.RUnlock()

	if age < a.refreshEvery && (ok || age < missReloadGap) {
		return acct, ok
	}
	if err := a.reload(ctx); err != nil {
		a.log.WithError(err).Warn("user reload failed, serving cached accounts")
		return acct, ok
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	acct, ok = a.accounts[username]
	return acct, ok
}

func (a *AuthManager) stale() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.now().Sub(a.loadedAt) >= a.refreshEvery
}

// reload replaces the cache with the user store contents. Plain-text
// passwords from older seeds are hashed and written back.
func (a *AuthManager) reload(ctx context.Context) error {
	if a.userStore == nil {
		a.mu.Lock()
		a.loadedAt = a.now()
		a.mu.Unlock()
		return nil
	}

	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]account, len(users))
	for _, user := range users {
		username := normalizeUsername(user.Username)
		if username == "" {
			continue
		}
		hash := user.Password
		if !isPasswordHash(hash) {
			upgraded, err := hashPassword(hash)
			if err != nil {
				return fmt.Errorf("hash legacy password for %s: %w", username, err)
			}
			if err := a.userStore.UpdateUserPassword(ctx, username, upgraded); err != nil {
				a.log.WithError(err).WithField("username", username).Warn("could not persist upgraded password hash")
			}
			hash = upgraded
		}
		next[username] = account{hash: hash, role: user.Role, active: user.Active, created: user.CreatedAt}
	}

	a.mu.Lock()
	a.accounts = next
	a.loadedAt = a.now()
	a.mu.Unlock()
	return nil
}

func operatorView(username string, acct account) domain.OperatorUser {
	return domain.OperatorUser{
		Username:  username,
		Role:      acct.role,
		Active:    acct.active,
		CreatedAt: acct.created.UTC().Format(time.RFC3339),
	}
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func verifyPassword(hash string, input string) bool {
	if !isPasswordHash(hash) || strings.TrimSpace(input) == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func isPasswordHash(value string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}
