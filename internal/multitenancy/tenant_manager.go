// Package multitenancy is the tenancy & claims kernel (C1): it normalizes
// every caller into a Principal{uid, companyId, role} and exposes the
// predicates every other component authorizes against. Every inbound
// operation passes through here before any business logic runs.
package multitenancy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/paintcrew/fieldtime/internal/apperr"
	"github.com/paintcrew/fieldtime/internal/database"
	"github.com/paintcrew/fieldtime/internal/domain"
)

// TenantManager resolves and validates API-key and header-based principals
// against the persistent store.
type TenantManager struct {
	db *database.SupabaseStore
}

// NewTenantManager builds a TenantManager over the given store.
func NewTenantManager(db *database.SupabaseStore) *TenantManager {
	return &TenantManager{db: db}
}

// ============================================================================
// API KEY MANAGEMENT — boundary-adapter credential, not a spec collection.
// ============================================================================

// CreateAPIKey issues a new integration credential of the form
// fieldtime_<keyId>.<secret>; only the bcrypt hash of the secret is stored.
func (tm *TenantManager) CreateAPIKey(ctx context.Context, companyID string) (*domain.APIKey, string, error) {
	idBytes := make([]byte, 8)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, "", apperr.Wrap(err)
	}
	keyID := hex.EncodeToString(idBytes)

	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, "", apperr.Wrap(err)
	}
	secret := hex.EncodeToString(secretBytes)

	fullKey := fmt.Sprintf("fieldtime_%s.%s", keyID, secret)

	secretHash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", apperr.Wrap(err)
	}

	apiKey := &domain.APIKey{
		CompanyID:  companyID,
		KeyID:      keyID,
		SecretHash: string(secretHash),
		CreatedAt:  time.Now().UTC(),
	}
	if err := tm.db.InsertAPIKey(ctx, apiKey); err != nil {
		return nil, "", err
	}
	return apiKey, fullKey, nil
}

// ValidateAPIKey parses and validates a fullKey, returning the companyId it
// is bound to.
func (tm *TenantManager) ValidateAPIKey(ctx context.Context, fullKey string) (string, error) {
	if !strings.HasPrefix(fullKey, "fieldtime_") {
		return "", apperr.New(apperr.Unauthenticated, "invalid api key format")
	}
	parts := strings.SplitN(strings.TrimPrefix(fullKey, "fieldtime_"), ".", 2)
	if len(parts) != 2 {
		return "", apperr.New(apperr.Unauthenticated, "invalid api key format")
	}
	keyID, secret := parts[0], parts[1]

	apiKey, err := tm.db.GetAPIKey(ctx, keyID)
	if err != nil {
		return "", err
	}
	if apiKey == nil {
		return "", apperr.New(apperr.Unauthenticated, "invalid api key")
	}
	if apiKey.RevokedAt != nil {
		return "", apperr.New(apperr.Unauthenticated, "api key revoked")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(apiKey.SecretHash), []byte(secret)); err != nil {
		return "", apperr.New(apperr.Unauthenticated, "invalid api key secret")
	}
	return apiKey.CompanyID, nil
}

// ============================================================================
// PREDICATES — used by every other component to gate an operation.
// ============================================================================

// IsAuthed reports whether ctx carries a resolved Principal.
func IsAuthed(ctx context.Context) bool {
	_, ok := PrincipalFrom(ctx)
	return ok
}

// InCompany reports whether the principal in ctx belongs to companyID.
func InCompany(ctx context.Context, companyID string) bool {
	p, ok := PrincipalFrom(ctx)
	return ok && p.CompanyID == companyID
}

// HasAnyRole reports whether the principal in ctx holds one of the given roles.
func HasAnyRole(ctx context.Context, roles ...domain.Role) bool {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// IsSelf reports whether the principal in ctx is the given user.
func IsSelf(ctx context.Context, uid string) bool {
	p, ok := PrincipalFrom(ctx)
	return ok && p.UID == uid
}

// RequirePrincipal returns the resolved principal or an unauthenticated
// error.
func RequirePrincipal(ctx context.Context) (*domain.Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return nil, apperr.New(apperr.Unauthenticated, "no authenticated principal")
	}
	return p, nil
}

// RequireCompanyMatch enforces property 5: the target company must equal
// the principal's company on every operation a non-platform caller observes
// to succeed.
func RequireCompanyMatch(ctx context.Context, targetCompanyID string) error {
	p, err := RequirePrincipal(ctx)
	if err != nil {
		return err
	}
	if p.CompanyID != targetCompanyID {
		return apperr.New(apperr.PermissionDenied, "company mismatch")
	}
	return nil
}

// ============================================================================
// CONTEXT HELPERS
// ============================================================================

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal attaches a resolved Principal to ctx.
func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the Principal from ctx, if any.
func PrincipalFrom(ctx context.Context) (*domain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*domain.Principal)
	return p, ok
}

// GetCompanyID is a convenience wrapper returning just the companyId, or an
// error matching RequirePrincipal's.
func GetCompanyID(ctx context.Context) (string, error) {
	p, err := RequirePrincipal(ctx)
	if err != nil {
		return "", err
	}
	return p.CompanyID, nil
}
