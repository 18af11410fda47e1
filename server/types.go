package server

import "github.com/Daskott/tandem/server/auth"

type ResponsePayload struct {
	Errors  []string    `json:"errors"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

type DecodedJWT struct {
	Claims   *auth.TandemTokenClaims
	ErrorMsg string
}

type RequestContextKey string

type linkRequest struct {
	Code     string `json:"code"`
	Username string `json:"username"`
	Scan     string `json:"scan"`
	Tier     string `json:"tier" validate:"omitempty,oneof=A-player Acquaintance"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
