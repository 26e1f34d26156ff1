package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/docvaulthq/docvault/tenant"
)

// AccessClaims are the JWT claims carried by docvault access tokens.
// OrganizationID may be empty for users who have not set up an
// organization yet; that state is valid and distinct from an anonymous
// request.
type AccessClaims struct {
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
	jwt.RegisteredClaims
}

// OrgLookup resolves the organization id and role currently stored for a
// user. Used by the stale-token refresh; implementations must be
// read-only.
type OrgLookup func(ctx context.Context, userID string) (organizationID, role string, err error)

// AuthService mints and verifies access tokens and resolves sessions
// from them. It keeps a short-TTL redis cache in front of the user
// lookup so token refresh does not hit postgres on every request; the
// cache is keyed per user and invalidated when a user's organization or
// role changes.
type AuthService struct {
	secret   []byte
	ttl      time.Duration
	Redis    *redis.Client
	cacheTTL time.Duration
}

const orgCachePrefix = "docvault:user:org:"

func NewAuthService(secret string, redisClient *redis.Client) *AuthService {
	if secret == "" {
		log.Println("Warning: JWT_SECRET not set, using insecure development secret")
		secret = "docvault-dev-secret"
	}
	return &AuthService{
		secret:   []byte(secret),
		ttl:      24 * time.Hour,
		Redis:    redisClient,
		cacheTTL: 5 * time.Minute,
	}
}

// HashPassword creates a bcrypt hash of the password
func (s *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a bcrypt hash against a candidate password.
func (s *AuthService) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// MintToken issues a signed access token for the user.
func (s *AuthService) MintToken(userID, email, organizationID, role string) (string, error) {
	now := time.Now()
	claims := &AccessClaims{
		UserID:         userID,
		Email:          email,
		OrganizationID: organizationID,
		Role:           role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    "docvault",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken verifies the signature and expiry and returns the claims.
func (s *AuthService) ParseToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// ExtractTokenFromHeader pulls the bearer token out of an Authorization
// header value.
func (s *AuthService) ExtractTokenFromHeader(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("authorization header must be 'Bearer <token>'")
	}
	return parts[1], nil
}

// RefreshClaims backfills organization data on a stale token. Tokens
// minted before the user finished onboarding carry an empty organization
// id; if storage now has one, the in-flight claims are amended so the
// request proceeds with the user's real tenant. The user record itself
// is never mutated here: this is a pure claims -> claims' function over
// the lookup.
func RefreshClaims(ctx context.Context, claims *AccessClaims, lookup OrgLookup) (*AccessClaims, error) {
	if claims.OrganizationID != "" {
		return claims, nil
	}
	orgID, role, err := lookup(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if orgID == "" {
		return claims, nil
	}
	refreshed := *claims
	refreshed.OrganizationID = orgID
	if role != "" {
		refreshed.Role = role
	}
	return &refreshed, nil
}

// Resolve turns a raw bearer token into a session. Invalid or missing
// credentials resolve to nil, never an error; callers treat nil as
// "unauthenticated". A valid token for a user without an organization
// resolves to a session with an empty OrganizationID.
func (s *AuthService) Resolve(ctx context.Context, tokenString string, lookup OrgLookup) *tenant.Session {
	if tokenString == "" {
		return nil
	}
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return nil
	}
	if claims.OrganizationID == "" && lookup != nil {
		refreshed, err := RefreshClaims(ctx, claims, s.cachedLookup(lookup))
		if err == nil {
			claims = refreshed
		} else {
			log.Printf("Warning: org refresh failed for user %s: %v", claims.UserID, err)
		}
	}
	return &tenant.Session{
		UserID:         claims.UserID,
		Email:          claims.Email,
		OrganizationID: claims.OrganizationID,
		Role:           claims.Role,
	}
}

// cachedLookup wraps the storage lookup with a per-user, time-bounded
// redis entry. Never an in-process map: the cache must not outlive its
// TTL and must survive across instances so invalidation works.
func (s *AuthService) cachedLookup(lookup OrgLookup) OrgLookup {
	return func(ctx context.Context, userID string) (string, string, error) {
		if s.Redis == nil {
			return lookup(ctx, userID)
		}
		key := orgCachePrefix + userID
		if cached, err := s.Redis.Get(ctx, key).Result(); err == nil {
			parts := strings.SplitN(cached, "|", 2)
			if len(parts) == 2 {
				return parts[0], parts[1], nil
			}
		}
		orgID, role, err := lookup(ctx, userID)
		if err != nil {
			return "", "", err
		}
		if orgID != "" {
			if err := s.Redis.Set(ctx, key, orgID+"|"+role, s.cacheTTL).Err(); err != nil {
				log.Printf("Warning: failed to cache org lookup for user %s: %v", userID, err)
			}
		}
		return orgID, role, nil
	}
}

// InvalidateOrgCache drops the cached organization entry for a user.
// Called after organization assignment or role changes.
func (s *AuthService) InvalidateOrgCache(ctx context.Context, userID string) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Del(ctx, orgCachePrefix+userID).Err(); err != nil {
		log.Printf("Warning: failed to invalidate org cache for user %s: %v", userID, err)
	}
}
