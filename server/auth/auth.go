package auth

import (
	"fmt"
	"time"

	"github.com/Daskott/tandem/server/auth/key"
	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"
)

const SESSION_TTL = 24 * time.Hour

type TandemTokenClaims struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsAdmin   bool   `json:"is_admin"`
	jwt.StandardClaims
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// EncodeJWT signs any claims with the key pair using RS256
func EncodeJWT(claims jwt.Claims, keyPair *key.KeyPair) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyPair.Kid

	tokenString, err := token.SignedString(keyPair.PrivateKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// DecodeJWT verifies tokenString against the key pair & fills claims
func DecodeJWT(tokenString string, claims jwt.Claims, keyPair *key.KeyPair) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// validate the alg is what you expect:
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		return keyPair.PublicKey, nil
	})

	if err != nil || !token.Valid {
		return fmt.Errorf("invalid jwt: %v", err)
	}

	return nil
}

// NewSessionClaims returns claims for a user session that expires after SESSION_TTL
func NewSessionClaims(userID uint, firstName, lastName string, isAdmin bool) TandemTokenClaims {
	now := time.Now()
	return TandemTokenClaims{
		FirstName: firstName,
		LastName:  lastName,
		IsAdmin:   isAdmin,
		StandardClaims: jwt.StandardClaims{
			Subject:   fmt.Sprint(userID),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(SESSION_TTL).Unix(),
			Issuer:    "tandem",
		},
	}
}

func DecodeSessionJWT(tokenString string, keyPair *key.KeyPair) (*TandemTokenClaims, error) {
	claims := &TandemTokenClaims{}
	if err := DecodeJWT(tokenString, claims, keyPair); err != nil {
		return nil, err
	}
	return claims, nil
}
