package elevated

import (
	"errors"
	"fmt"
	"time"

	"github.com/Daskott/tandem/server/auth"
	"github.com/Daskott/tandem/server/auth/key"
	"github.com/golang-jwt/jwt"
)

const (
	GRANT_HEADER   = "X-Link-Grant"
	GRANT_PURPOSE  = "reciprocal_link"
	GRANT_AUDIENCE = "tandem-elevated"
	GRANT_TTL      = 60 * time.Second
)

var ErrUnauthorizedCaller = errors.New("caller is not a party to this link")

// GrantClaims binds a single reciprocal write to the requester & target
// of one in-flight link attempt.
type GrantClaims struct {
	RequesterID uint   `json:"requester_id"`
	TargetID    uint   `json:"target_id"`
	Purpose     string `json:"purpose"`
	jwt.StandardClaims
}

// Issuer mints link grants. Only the link orchestrator should hold one.
type Issuer struct {
	keyPair *key.KeyPair
	ttl     time.Duration
}

func NewIssuer(keyPair *key.KeyPair) *Issuer {
	return &Issuer{keyPair: keyPair, ttl: GRANT_TTL}
}

func (issuer *Issuer) Issue(requesterID, targetID uint) (string, error) {
	now := time.Now()
	claims := GrantClaims{
		RequesterID: requesterID,
		TargetID:    targetID,
		Purpose:     GRANT_PURPOSE,
		StandardClaims: jwt.StandardClaims{
			Audience:  GRANT_AUDIENCE,
			Subject:   fmt.Sprint(requesterID),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(issuer.ttl).Unix(),
		},
	}

	return auth.EncodeJWT(claims, issuer.keyPair)
}

func verifyGrant(token string, keyPair *key.KeyPair) (*GrantClaims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing link grant", ErrUnauthorizedCaller)
	}

	claims := &GrantClaims{}
	if err := auth.DecodeJWT(token, claims, keyPair); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorizedCaller, err)
	}

	if claims.Purpose != GRANT_PURPOSE || !claims.VerifyAudience(GRANT_AUDIENCE, true) {
		return nil, fmt.Errorf("%w: grant not valid for reciprocal writes", ErrUnauthorizedCaller)
	}

	return claims, nil
}
