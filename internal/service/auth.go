package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/localstore"
	"github.com/fintrack/fintrack-go/internal/port"
)

var authTracer = otel.Tracer("service/auth")

const (
	bcryptCost      = 12
	minPasswordLen  = 8
	totpIssuer      = "FinTrack"
	refreshTokenKey = "refreshTokens"
)

// refreshRecord is a stored, hashed refresh token.
type refreshRecord struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthService handles registration, login, JWT token management and
// TOTP two-factor enrollment. Users and hashed refresh tokens live in
// the local store.
type AuthService struct {
	store      port.KeyValue
	clock      port.Clock
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(store port.KeyValue, clock port.Clock, jwtSecret string, accessTTL, refreshTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:      store,
		clock:      clock,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

// ============================================================
// Register — POST /v1/auth/register
// ============================================================

func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" {
		return nil, &domain.ErrValidation{Field: "username", Message: "username is required"}
	}
	if len(req.Password) < minPasswordLen {
		return nil, &domain.ErrValidation{Field: "password", Message: fmt.Sprintf("password must be at least %d characters", minPasswordLen)}
	}

	users, err := s.loadUsers()
	if err != nil {
		return nil, err
	}
	if _, exists := users[username]; exists {
		return nil, &domain.ErrConflict{Message: "username already taken"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := domain.StoredUser{
		User: domain.User{
			ID:        "user_" + uuid.NewString(),
			Username:  username,
			Email:     strings.TrimSpace(req.Email),
			CreatedAt: s.clock.Now(),
		},
		PasswordHash: string(hash),
	}
	users[username] = user
	if err := s.store.Put(localstore.KeyUsers, users); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))

	public := user.User
	return &public, nil
}

// ============================================================
// Login — POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()
	span.SetAttributes(attribute.String("username", req.Username))

	users, err := s.loadUsers()
	if err != nil {
		return nil, err
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	user, ok := users[username]
	if !ok {
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("login failed", zap.String("username", username))
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}

	if user.TOTPEnabled {
		if req.TOTPCode == "" {
			return &domain.LoginResponse{TwoFactorRequired: true}, nil
		}
		if !totp.Validate(req.TOTPCode, user.TOTPSecret) {
			return nil, &domain.ErrInvalidTOTP{}
		}
	}

	now := s.clock.Now()
	user.LastLoginAt = &now
	users[username] = user
	if err := s.store.Put(localstore.KeyUsers, users); err != nil {
		return nil, err
	}

	return s.issueTokens(user.User)
}

// ============================================================
// Refresh — POST /v1/auth/refresh
// ============================================================

func (s *AuthService) Refresh(ctx context.Context, req *domain.RefreshRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Refresh")
	defer span.End()

	tokens, err := s.loadRefreshTokens()
	if err != nil {
		return nil, err
	}

	tokenHash := hashToken(req.RefreshToken)
	stored, ok := tokens[tokenHash]
	if !ok {
		return nil, &domain.ErrUnauthorized{Message: "invalid refresh token"}
	}

	// Rotation: the presented token is spent either way.
	delete(tokens, tokenHash)
	if err := s.store.Put(refreshTokenKey, tokens); err != nil {
		return nil, err
	}

	if stored.ExpiresAt.Before(s.clock.Now()) {
		s.logger.Warn("refresh: expired token used", zap.String("user_id", stored.UserID))
		return nil, &domain.ErrUnauthorized{Message: "refresh token expired"}
	}

	user, err := s.userByID(stored.UserID)
	if err != nil {
		return nil, err
	}

	return s.issueTokens(user.User)
}

// ============================================================
// Logout — POST /v1/auth/logout
// ============================================================

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	tokens, err := s.loadRefreshTokens()
	if err != nil {
		return err
	}
	for hash, rec := range tokens {
		if rec.UserID == userID {
			delete(tokens, hash)
		}
	}
	if err := s.store.Put(refreshTokenKey, tokens); err != nil {
		return err
	}

	s.logger.Info("user logged out", zap.String("user_id", userID))
	return nil
}

// Me returns the public profile for an authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	_, span := authTracer.Start(ctx, "AuthService.Me")
	defer span.End()

	user, err := s.userByID(userID)
	if err != nil {
		return nil, err
	}
	public := user.User
	return &public, nil
}

// ============================================================
// Two-factor (TOTP)
// ============================================================

// TwoFactorSetup generates a fresh TOTP secret. It stays pending until
// the user confirms a code through TwoFactorVerify.
func (s *AuthService) TwoFactorSetup(ctx context.Context, userID string) (*domain.TwoFactorSetupResponse, error) {
	_, span := authTracer.Start(ctx, "AuthService.TwoFactorSetup")
	defer span.End()

	user, err := s.userByID(userID)
	if err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: user.Username,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}

	user.TOTPSecret = key.Secret()
	user.TOTPEnabled = false
	if err := s.saveUser(*user); err != nil {
		return nil, err
	}

	return &domain.TwoFactorSetupResponse{
		Secret:     key.Secret(),
		OtpauthURL: key.URL(),
	}, nil
}

// TwoFactorVerify confirms the pending secret and enables two-factor.
func (s *AuthService) TwoFactorVerify(ctx context.Context, userID, code string) error {
	_, span := authTracer.Start(ctx, "AuthService.TwoFactorVerify")
	defer span.End()

	user, err := s.userByID(userID)
	if err != nil {
		return err
	}
	if user.TOTPSecret == "" {
		return &domain.ErrValidation{Field: "totp", Message: "no pending two-factor setup"}
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return &domain.ErrInvalidTOTP{}
	}

	user.TOTPEnabled = true
	if err := s.saveUser(*user); err != nil {
		return err
	}

	s.logger.Info("two-factor enabled", zap.String("user_id", userID))
	return nil
}

// TwoFactorDisable turns off two-factor after verifying a current code.
func (s *AuthService) TwoFactorDisable(ctx context.Context, userID, code string) error {
	_, span := authTracer.Start(ctx, "AuthService.TwoFactorDisable")
	defer span.End()

	user, err := s.userByID(userID)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled {
		return &domain.ErrValidation{Field: "totp", Message: "two-factor is not enabled"}
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return &domain.ErrInvalidTOTP{}
	}

	user.TOTPEnabled = false
	user.TOTPSecret = ""
	if err := s.saveUser(*user); err != nil {
		return err
	}

	s.logger.Info("two-factor disabled", zap.String("user_id", userID))
	return nil
}

// TwoFactorStatus reports whether two-factor is active for the user.
func (s *AuthService) TwoFactorStatus(ctx context.Context, userID string) (*domain.TwoFactorStatusResponse, error) {
	_, span := authTracer.Start(ctx, "AuthService.TwoFactorStatus")
	defer span.End()

	user, err := s.userByID(userID)
	if err != nil {
		return nil, err
	}
	return &domain.TwoFactorStatusResponse{Enabled: user.TOTPEnabled}, nil
}

// ============================================================
// JWT
// ============================================================

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	Sub      string `json:"sub"`
	Username string `json:"username"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// ValidateAccessToken parses and verifies an access token.
func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token type"}
	}
	return claims, nil
}

// ============================================================
// Internal helpers
// ============================================================

func (s *AuthService) issueTokens(user domain.User) (*domain.LoginResponse, error) {
	accessToken, err := s.signAccessToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, refreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	tokens, err := s.loadRefreshTokens()
	if err != nil {
		return nil, err
	}
	tokens[refreshHash] = refreshRecord{
		UserID:    user.ID,
		ExpiresAt: s.clock.Now().Add(s.refreshTTL),
	}
	if err := s.store.Put(refreshTokenKey, tokens); err != nil {
		return nil, err
	}

	return &domain.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.accessTTL.Seconds()),
		UserID:       user.ID,
		Username:     user.Username,
	}, nil
}

func (s *AuthService) signAccessToken(userID, username string) (string, error) {
	now := s.clock.Now()
	claims := JWTClaims{
		Sub:      userID,
		Username: username,
		Type:     "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "fintrack-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) loadUsers() (map[string]domain.StoredUser, error) {
	users := map[string]domain.StoredUser{}
	if _, err := s.store.Get(localstore.KeyUsers, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *AuthService) loadRefreshTokens() (map[string]refreshRecord, error) {
	tokens := map[string]refreshRecord{}
	if _, err := s.store.Get(refreshTokenKey, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (s *AuthService) userByID(userID string) (*domain.StoredUser, error) {
	users, err := s.loadUsers()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == userID {
			return &u, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
}

func (s *AuthService) saveUser(user domain.StoredUser) error {
	users, err := s.loadUsers()
	if err != nil {
		return err
	}
	users[user.Username] = user
	return s.store.Put(localstore.KeyUsers, users)
}

func generateRefreshToken() (raw string, hashed string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	hashed = hashToken(raw)
	return raw, hashed, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
