package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestVerifyDevToken(t *testing.T) {
	v := &Verifier{Mode: "dev"}
	pr, err := v.Verify("t_demo:planner")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if pr.Tenant != "t_demo" || pr.Role != "planner" {
		t.Fatalf("principal: %+v", pr)
	}
	if _, err := v.Verify("garbage"); err == nil {
		t.Fatal("expected error for malformed dev token")
	}
}

func TestVerifyHS256(t *testing.T) {
	secret := []byte("s3cret")
	v := &Verifier{Mode: "hmac", HMACSecret: secret, TenantClaim: "tenant", RoleClaim: "role", SubjectClaim: "sub"}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"tenant":"t1","role":"Admin","sub":"u1"}`))
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(header + "." + payload))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	pr, err := v.Verify(header + "." + payload + "." + sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if pr.Tenant != "t1" || pr.Role != "admin" || pr.Subject != "u1" {
		t.Fatalf("principal: %+v", pr)
	}
	// tampered payload must fail
	bad := base64.RawURLEncoding.EncodeToString([]byte(`{"tenant":"t2","role":"admin"}`))
	if _, err := v.Verify(header + "." + bad + "." + sig); err == nil {
		t.Fatal("expected bad signature error")
	}
}
