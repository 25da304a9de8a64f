package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer  = "dms-sync"
	testSignKey = "secret-key"
)

func signClaims(t *testing.T, method jwt.SigningMethod, claims jwt.RegisteredClaims, key any) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestGenerateJWTToken(t *testing.T) {
	token, err := GenerateJWTToken(testIssuer, "coordinator-123", time.Hour, testSignKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if token.SignedString == "" || token.UserID != "coordinator-123" {
		t.Fatalf("unexpected token: %+v", token)
	}

	claims, ok := token.Token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		t.Fatal("could not cast claims to RegisteredClaims")
	}
	if claims.Issuer != testIssuer || claims.Subject != "coordinator-123" {
		t.Errorf("unexpected claims: iss=%q sub=%q", claims.Issuer, claims.Subject)
	}
	if claims.ID == "" {
		t.Error("expected a jti claim")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Errorf("expected a one hour lifetime, got %v", got)
	}

	other, _ := GenerateJWTToken(testIssuer, "coordinator-123", time.Hour, testSignKey)
	if other.SignedString == token.SignedString {
		t.Error("two tokens for the same user must differ")
	}
}

func TestGenerateJWTToken_InvalidParams(t *testing.T) {
	tests := []struct {
		name     string
		issuer   string
		userID   string
		duration time.Duration
		key      string
	}{
		{"empty issuer", "", "u", time.Hour, "key"},
		{"empty user", "iss", "", time.Hour, "key"},
		{"zero duration", "iss", "u", 0, "key"},
		{"negative duration", "iss", "u", -time.Minute, "key"},
		{"empty key", "iss", "u", time.Hour, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateJWTToken(tt.issuer, tt.userID, tt.duration, tt.key)
			if !errors.Is(err, errInvalidTokenParams) {
				t.Errorf("expected errInvalidTokenParams, got %v", err)
			}
		})
	}
}

func TestValidateAndParseJWTToken(t *testing.T) {
	now := time.Now()
	valid := jwt.RegisteredClaims{
		Issuer:    testIssuer,
		Subject:   "responder-456",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	with := func(mutate func(c *jwt.RegisteredClaims)) jwt.RegisteredClaims {
		c := valid
		mutate(&c)
		return c
	}

	tests := []struct {
		name     string
		token    string
		wantUser string
		wantErr  error
	}{
		{
			name:     "valid",
			token:    signClaims(t, jwt.SigningMethodHS256, valid, []byte(testSignKey)),
			wantUser: "responder-456",
		},
		{
			name:    "wrong key",
			token:   signClaims(t, jwt.SigningMethodHS256, valid, []byte("other-key")),
			wantErr: jwt.ErrTokenSignatureInvalid,
		},
		{
			name: "expired",
			token: signClaims(t, jwt.SigningMethodHS256,
				with(func(c *jwt.RegisteredClaims) { c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Second)) }),
				[]byte(testSignKey)),
			wantErr: jwt.ErrTokenExpired,
		},
		{
			name:    "no expiry",
			token:   signClaims(t, jwt.SigningMethodHS256, with(func(c *jwt.RegisteredClaims) { c.ExpiresAt = nil }), []byte(testSignKey)),
			wantErr: jwt.ErrTokenRequiredClaimMissing,
		},
		{
			name:    "foreign issuer",
			token:   signClaims(t, jwt.SigningMethodHS256, with(func(c *jwt.RegisteredClaims) { c.Issuer = "elsewhere" }), []byte(testSignKey)),
			wantErr: jwt.ErrTokenInvalidIssuer,
		},
		{
			name:    "other HMAC algorithm",
			token:   signClaims(t, jwt.SigningMethodHS512, valid, []byte(testSignKey)),
			wantErr: jwt.ErrTokenSignatureInvalid,
		},
		{
			name:  "empty subject",
			token: signClaims(t, jwt.SigningMethodHS256, with(func(c *jwt.RegisteredClaims) { c.Subject = "" }), []byte(testSignKey)),
		},
		{
			name:    "malformed",
			token:   "not.a.token",
			wantErr: jwt.ErrTokenMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := ValidateAndParseJWTToken(tt.token, testSignKey, testIssuer)

			if tt.wantUser != "" {
				if err != nil {
					t.Fatalf("expected a valid token, got: %v", err)
				}
				if token.UserID != tt.wantUser {
					t.Errorf("expected user %q, got %q", tt.wantUser, token.UserID)
				}
				return
			}

			if err == nil {
				t.Fatal("expected an error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseUserIDFromJWT(t *testing.T) {
	token, _ := GenerateJWTToken(testIssuer, "field-user-9", time.Hour, testSignKey)

	userID, err := ParseUserIDFromJWT(token.SignedString)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "field-user-9" {
		t.Errorf("expected field-user-9, got %s", userID)
	}

	if _, err := ParseUserIDFromJWT("garbage"); err == nil {
		t.Error("expected error for garbage token")
	}
}
