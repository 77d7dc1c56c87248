// Package approval converts a risk level into a requirement for human
// sign-off and validates the approval tokens operators present. Tokens are
// HMAC-signed JWTs binding the exact plan content hash, so an approval for
// one plan can never authorize another.
package approval

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stratus-ops/conductor/pkg/contracts"
)

// ErrInvalidApprovalToken means a supplied token is missing, expired,
// malformed or bound to a different plan. Surfaced distinctly from execution
// errors so callers can re-prompt for approval.
var ErrInvalidApprovalToken = errors.New("approval: invalid approval token")

// DefaultTokenTTL bounds how long an issued approval stays valid.
const DefaultTokenTTL = 15 * time.Minute

const tokenIssuer = "conductor/approval"

// PlanCheckpointID is the plan-level approval checkpoint required at MEDIUM
// and above.
const PlanCheckpointID = "plan"

// Claims are the approval token payload.
type Claims struct {
	jwt.RegisteredClaims
	PlanHash    string              `json:"plan_hash"`
	RiskLevel   contracts.RiskLevel `json:"risk_level"`
	Checkpoints []string            `json:"checkpoints,omitempty"`
	ApproverID  string              `json:"approver_id"`
}

// TokenValidator is the collaborator hook the gate calls. Implemented by
// TokenManager; replaced by fakes in tests. checkpoints lists the checkpoint
// IDs the caller requires the token to cover.
type TokenValidator interface {
	ValidateApproval(token string, planHash string, checkpoints []string) error
}

// TokenManager issues and validates approval tokens with a shared HMAC key.
type TokenManager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokenManager creates a manager signing with the given key.
func NewTokenManager(key []byte) *TokenManager {
	return &TokenManager{key: key, ttl: DefaultTokenTTL, now: time.Now}
}

// WithTTL overrides the token lifetime.
func (tm *TokenManager) WithTTL(ttl time.Duration) *TokenManager {
	tm.ttl = ttl
	return tm
}

// WithClock overrides the clock for deterministic testing.
func (tm *TokenManager) WithClock(clock func() time.Time) *TokenManager {
	tm.now = clock
	return tm
}

// Issue signs an approval for the plan identified by planHash. checkpoints
// lists the approval checkpoint IDs this token satisfies.
func (tm *TokenManager) Issue(planHash string, level contracts.RiskLevel, checkpoints []string, approverID string) (string, error) {
	now := tm.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   planHash,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
		},
		PlanHash:    planHash,
		RiskLevel:   level,
		Checkpoints: checkpoints,
		ApproverID:  approverID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.key)
	if err != nil {
		return "", fmt.Errorf("approval: sign token: %w", err)
	}
	return signed, nil
}

// ValidateApproval checks the token signature, expiry, plan binding and
// checkpoint coverage. The token must have been issued for every checkpoint
// ID in checkpoints; a token granted at a lower risk level never satisfies a
// gate that demands more sign-offs.
func (tm *TokenManager) ValidateApproval(tokenString string, planHash string, checkpoints []string) error {
	if tokenString == "" {
		return fmt.Errorf("%w: no token supplied", ErrInvalidApprovalToken)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return tm.key, nil
		},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidApprovalToken, err)
	}
	if !token.Valid {
		return fmt.Errorf("%w: token rejected", ErrInvalidApprovalToken)
	}
	if claims.PlanHash != planHash {
		return fmt.Errorf("%w: token approves a different plan", ErrInvalidApprovalToken)
	}

	granted := make(map[string]bool, len(claims.Checkpoints))
	for _, id := range claims.Checkpoints {
		granted[id] = true
	}
	for _, id := range checkpoints {
		if !granted[id] {
			return fmt.Errorf("%w: token does not cover checkpoint %q", ErrInvalidApprovalToken, id)
		}
	}
	return nil
}
