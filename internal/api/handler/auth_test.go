package handler_test

import (
	"testing"
	"time"

	"github.com/merkledrop-io/merkledrop/internal/api/handler"
)

func TestAdminTokens_roundTrip(t *testing.T) {
	tokens := handler.NewAdminTokens("secret", "merkledrop", time.Hour)

	tok, err := tokens.Issue("ops@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	subject, err := tokens.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject != "ops@example.com" {
		t.Errorf("subject = %q", subject)
	}
}

func TestAdminTokens_rejectsWrongSecret(t *testing.T) {
	issuer := handler.NewAdminTokens("secret-a", "merkledrop", time.Hour)
	verifier := handler.NewAdminTokens("secret-b", "merkledrop", time.Hour)

	tok, err := issuer.Issue("ops@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(tok); err == nil {
		t.Fatal("expected verification failure across secrets")
	}
}

func TestAdminTokens_rejectsWrongIssuer(t *testing.T) {
	issuer := handler.NewAdminTokens("secret", "staging", time.Hour)
	verifier := handler.NewAdminTokens("secret", "production", time.Hour)

	tok, err := issuer.Issue("ops@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(tok); err == nil {
		t.Fatal("expected verification failure across issuers")
	}
}

func TestAdminTokens_rejectsGarbage(t *testing.T) {
	tokens := handler.NewAdminTokens("secret", "merkledrop", time.Hour)
	if _, err := tokens.Verify("xx.yy.zz"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
