package security

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func testArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestHasher(t *testing.T) *Argon2Hasher {
	t.Helper()
	hasher, err := NewArgon2Hasher(testArgon2Config())
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	return hasher
}

func TestHashAndVerifySuccess(t *testing.T) {
	hasher := newTestHasher(t)
	password := "correct horse battery staple"

	encoded, err := hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	if encoded == "" {
		t.Fatal("Hash returned empty string")
	}
	if strings.Contains(encoded, password) {
		t.Fatal("encoded hash contains the plaintext password")
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		t.Fatalf("unexpected hash format: %q", encoded)
	}
	if parts[0] != argon2Variant {
		t.Fatalf("unexpected variant: %s", parts[0])
	}
	if parts[1] != argon2Version {
		t.Fatalf("unexpected version: %s", parts[1])
	}
	if parts[2] != "m=8192,t=1,p=1" {
		t.Fatalf("encoded hash does not reflect configured parameters: %s", parts[2])
	}

	ok, err := hasher.Verify(password, encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatal("Verify returned false for correct password")
	}
}

func TestHashUsesFreshSalt(t *testing.T) {
	hasher := newTestHasher(t)

	first, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	second, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	if first == second {
		t.Fatal("expected distinct hashes for the same password")
	}
}

func TestVerifyIncorrectPassword(t *testing.T) {
	hasher := newTestHasher(t)

	encoded, err := hasher.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	ok, err := hasher.Verify("Tr0ub4dor&3", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("Verify returned true for incorrect password")
	}
}

func TestVerifyMalformedHashNeverMatches(t *testing.T) {
	hasher := newTestHasher(t)

	cases := []string{
		"invalid-format",
		"argon2id$v=19$m=8192,t=1,p=1$not-base64!$abc",
		"argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$aGFzaA",
		"argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$aGFzaA",
		"argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0$aGFzaA",
	}

	for _, encoded := range cases {
		ok, err := hasher.Verify("password", encoded)
		if err != nil {
			t.Fatalf("Verify(%q) returned error: %v", encoded, err)
		}
		if ok {
			t.Fatalf("Verify(%q) returned true for malformed hash", encoded)
		}
	}
}

func TestVerifyEmptyInputs(t *testing.T) {
	hasher := newTestHasher(t)

	ok, err := hasher.Verify("", "")
	if err != nil {
		t.Fatalf("Verify returned error for empty inputs: %v", err)
	}
	if ok {
		t.Fatal("Verify should return false for empty inputs")
	}
}

func TestVerifyLegacyBcryptHash(t *testing.T) {
	hasher := newTestHasher(t)
	password := "correct horse battery staple"

	legacy, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword returned error: %v", err)
	}

	ok, err := hasher.Verify(password, string(legacy))
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatal("Verify did not validate bcrypt hash")
	}

	ok, _ = hasher.Verify("wrong password", string(legacy))
	if ok {
		t.Fatal("Verify accepted wrong password for bcrypt hash")
	}

	if !hasher.NeedsRehash(string(legacy)) {
		t.Fatal("expected bcrypt hash to need rehash")
	}
}

func TestNeedsRehashOnParameterChange(t *testing.T) {
	hasher := newTestHasher(t)

	encoded, err := hasher.Hash("change-me")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if hasher.NeedsRehash(encoded) {
		t.Fatal("fresh hash should not need rehash")
	}

	stronger := testArgon2Config()
	stronger.Iterations = 2
	upgraded, err := NewArgon2Hasher(stronger)
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}

	if !upgraded.NeedsRehash(encoded) {
		t.Fatal("expected hash with old parameters to need rehash")
	}

	ok, err := upgraded.Verify("change-me", encoded)
	if err != nil || !ok {
		t.Fatalf("hash with old parameters must still verify: ok=%v err=%v", ok, err)
	}
}

func TestNewArgon2HasherRejectsWeakConfig(t *testing.T) {
	cfg := testArgon2Config()
	cfg.Memory = 1024

	if _, err := NewArgon2Hasher(cfg); err == nil {
		t.Fatal("expected error for memory below minimum")
	}

	cfg = testArgon2Config()
	cfg.KeyLength = 8
	if _, err := NewArgon2Hasher(cfg); err == nil {
		t.Fatal("expected error for short key length")
	}
}

func TestVerifyRejectsExcessiveStoredCost(t *testing.T) {
	hasher := newTestHasher(t)

	// Valid encodings whose parameters are far above the active configuration.
	cases := []string{
		"argon2id$v=19$m=4294967295,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"argon2id$v=19$m=8192,t=4294967295,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"argon2id$v=19$m=8192,t=1,p=255$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
	}

	for _, encoded := range cases {
		ok, err := hasher.Verify("password", encoded)
		if err != nil {
			t.Fatalf("Verify(%q) returned error: %v", encoded, err)
		}
		if ok {
			t.Fatalf("Verify(%q) returned true for over-budget hash", encoded)
		}
	}
}

func TestVerifyAcceptsHashWithinCostCeiling(t *testing.T) {
	stronger := testArgon2Config()
	stronger.Memory *= maxCostFactor
	stronger.Iterations = 2

	producer, err := NewArgon2Hasher(stronger)
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	encoded, err := producer.Hash("Correct-Horse-42")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	ok, err := newTestHasher(t).Verify("Correct-Horse-42", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected hash at the cost ceiling to verify")
	}
}
