// Package services – authentication
//
// TokenIssuer mints HS256 access tokens. JWTVerifier turns an Authorization
// header value back into a domain.Identity, rejecting tokens whose user no
// longer exists. AuthService registers users and logs them in with bcrypt.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-shop-chat/internal/domain"
	"github.com/tbourn/go-shop-chat/internal/repo"
)

// MinPasswordLen is the shortest password Register accepts.
const MinPasswordLen = 8

// Claims are the custom JWT claims carried by access tokens.
type Claims struct {
	Role  domain.Role `json:"role"`
	Email string      `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer signs access tokens.
type TokenIssuer struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// Issue returns a signed access token for u.
func (t *TokenIssuer) Issue(u *domain.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:  u.Role,
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.Issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
}

// JWTVerifier verifies bearer credentials against the signing secret and the
// users table.
type JWTVerifier struct {
	DB     *gorm.DB
	Secret []byte
	Issuer string
}

// Verify accepts "Bearer <jwt>" (or a bare token) and returns the identity it
// names. Every failure is ErrUnauthenticated.
func (v *JWTVerifier) Verify(ctx context.Context, credential string) (domain.Identity, error) {
	ctx, span := otel.Tracer("services/JWTVerifier").Start(ctx, "Verify")
	defer span.End()

	raw := bearerToken(credential)
	if raw == "" {
		return domain.Identity{}, ErrUnauthenticated
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return domain.Identity{}, ErrUnauthenticated
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return domain.Identity{}, ErrUnauthenticated
	}
	span.SetAttributes(attribute.Int64("user.id", id))

	// The role comes from the store, not the token, so demotions apply at once.
	u, err := repo.GetUser(ctx, v.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Identity{}, ErrUnauthenticated
		}
		return domain.Identity{}, err
	}
	return domain.Identity{ID: u.ID, Role: u.Role}, nil
}

func bearerToken(h string) string {
	h = strings.TrimSpace(h)
	if len(h) >= 7 && strings.EqualFold(h[:7], "bearer ") {
		h = strings.TrimSpace(h[7:])
	}
	if strings.ContainsAny(h, " \t") {
		return ""
	}
	return h
}

// AuthService registers users and exchanges credentials for tokens.
type AuthService struct {
	DB       *gorm.DB
	Tokens   *TokenIssuer
	HashCost int
}

// NewAuthService constructs an AuthService with bcrypt's default cost.
func NewAuthService(db *gorm.DB, tokens *TokenIssuer) *AuthService {
	return &AuthService{DB: db, Tokens: tokens, HashCost: bcrypt.DefaultCost}
}

// Register creates a regular user.
func (s *AuthService) Register(ctx context.Context, email, password, confirm string) (*domain.User, error) {
	return s.create(ctx, email, password, confirm, domain.RoleUser)
}

// RegisterAdmin creates an admin user. It is only reachable from the CLI.
func (s *AuthService) RegisterAdmin(ctx context.Context, email, password string) (*domain.User, error) {
	return s.create(ctx, email, password, password, domain.RoleAdmin)
}

func (s *AuthService) create(ctx context.Context, email, password, confirm string, role domain.Role) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Register",
		trace.WithAttributes(attribute.String("user.role", string(role))))
	defer span.End()

	if password != confirm {
		return nil, ErrPasswordMismatch
	}
	if len(password) < MinPasswordLen {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.HashCost)
	if err != nil {
		return nil, err
	}
	u, err := repo.CreateUser(ctx, s.DB, email, string(hash), role)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	return u, err
}

// Login checks the password and returns a signed access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Login")
	defer span.End()

	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return s.Tokens.Issue(u)
}

// TokenFor mints a token for an existing user id.
func (s *AuthService) TokenFor(ctx context.Context, userID int64) (string, error) {
	u, err := repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return s.Tokens.Issue(u)
}

// UserExists reports whether a user with id exists.
func (s *AuthService) UserExists(ctx context.Context, id int64) (bool, error) {
	_, err := repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
