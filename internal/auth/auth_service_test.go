package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"
)

func newTestService(t *testing.T, accessTTL, refreshTTL time.Duration) *AuthService {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicDER,
	})

	svc, err := NewAuthService(privatePEM, publicPEM, accessTTL, refreshTTL)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}

func TestTokenPairRoundTrip(t *testing.T) {
	svc := newTestService(t, time.Minute, time.Hour)

	dept := uint(3)
	pair, err := svc.GenerateTokenPair(Identity{
		UserID:             42,
		Role:               "HR",
		DepartmentID:       &dept,
		MustChangePassword: true,
	})
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	claims, err := svc.ValidateToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access token: %v", err)
	}
	if claims.UserID != 42 || claims.Role != "HR" || !claims.MustChangePassword {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.DepartmentID == nil || *claims.DepartmentID != dept {
		t.Fatalf("department = %v, want %d", claims.DepartmentID, dept)
	}
	if claims.TokenType != "access" {
		t.Fatalf("token type = %q, want access", claims.TokenType)
	}

	refresh, err := svc.ValidateToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh token: %v", err)
	}
	if refresh.TokenType != "refresh" {
		t.Fatalf("token type = %q, want refresh", refresh.TokenType)
	}
	if refresh.ID == "" {
		t.Fatal("refresh token missing jti")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := newTestService(t, -time.Minute, time.Hour)

	pair, err := svc.GenerateTokenPair(Identity{UserID: 1, Role: "Owner"})
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}
	if _, err := svc.ValidateToken(pair.AccessToken); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newTestService(t, time.Minute, time.Hour)
	if _, err := svc.ValidateToken("not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestPasswordHashing(t *testing.T) {
	svc := newTestService(t, time.Minute, time.Hour)

	hash, err := svc.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !svc.CheckPasswordHash("correct horse battery staple", hash) {
		t.Fatal("valid password rejected")
	}
	if svc.CheckPasswordHash("wrong password", hash) {
		t.Fatal("invalid password accepted")
	}
}
