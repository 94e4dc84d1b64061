package testhelpers

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/floroz/atelier/pkg/auth"
)

const TestIssuer = "atelier-test"

// TestSigner signs tokens for handler tests with a throwaway RSA key.
type TestSigner struct {
	*auth.Signer
	t *testing.T
}

func NewTestSigner(t *testing.T) *TestSigner {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate rsa key: %s", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	pubBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal public key: %s", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	signer, err := auth.NewSigner(privPEM, pubPEM, TestIssuer)
	if err != nil {
		t.Fatalf("failed to create signer: %s", err)
	}
	return &TestSigner{Signer: signer, t: t}
}

// Bearer returns an Authorization header value for userID with the given role.
func (s *TestSigner) Bearer(userID uuid.UUID, role auth.Role) string {
	s.t.Helper()
	token, err := s.GenerateToken(userID, userID.String()+"@example.com", "Test User", role, time.Hour)
	if err != nil {
		s.t.Fatalf("failed to sign token: %s", err)
	}
	return "Bearer " + token
}
