package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndVerifyAdmin(t *testing.T) {
	t.Parallel()
	tokens, err := IssueAdmin("admin", "studyledger", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := VerifyAdmin(tokens.AccessToken, "secret", "studyledger")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "admin" || claims.Role != RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := VerifyAdmin(tokens.RefreshToken, "secret", "studyledger"); err != nil {
		t.Fatalf("refresh token should verify too: %v", err)
	}
}

func TestVerifyRejectsWrongKeyAndIssuer(t *testing.T) {
	t.Parallel()
	tokens, err := IssueAdmin("admin", "studyledger", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := VerifyAdmin(tokens.AccessToken, "other-key", "studyledger"); err == nil {
		t.Fatal("wrong key accepted")
	}
	if _, err := VerifyAdmin(tokens.AccessToken, "secret", "someone-else"); err == nil {
		t.Fatal("wrong issuer accepted")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()
	tokens, err := IssueAdmin("admin", "studyledger", "secret", -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := VerifyAdmin(tokens.AccessToken, "secret", "studyledger"); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestVerifyRejectsNonAdminRole(t *testing.T) {
	t.Parallel()
	// A well-signed token without the admin role must still be refused.
	claims := Claims{
		Role: "member",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "studyledger",
			Subject:   "mina",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := VerifyAdmin(token, "secret", "studyledger"); err == nil {
		t.Fatal("non-admin role accepted")
	}
}
