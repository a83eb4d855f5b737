package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claims is the verified content of a bearer token. Subject is the username.
type claims struct {
	Company string `json:"company,omitempty"`
	jwt.RegisteredClaims
}

type tokenVerifier interface {
	verify(token string) (*claims, error)
}

// jwtVerifier accepts HS256 tokens signed with a shared secret. Tokens must
// carry an expiry and a non-empty subject.
type jwtVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func newJWTVerifier(secret string) jwtVerifier {
	return jwtVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

func (v jwtVerifier) verify(token string) (*claims, error) {
	if token == "" {
		return nil, errMissingToken
	}
	c := &claims{}
	_, err := v.parser.ParseWithClaims(token, c, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", errInvalidToken)
	}
	return c, nil
}

// bearerToken extracts the credential from an Authorization header.
func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// signToken issues a token the verifier accepts. Issuance belongs to the
// login service; this exists for local tooling and tests.
func signToken(secret, subject string, expires time.Time) (string, error) {
	c := claims{
		Company: "ACME",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}
