package auth

import "testing"

func TestNewTokenIsUnique(t *testing.T) {
	first, err := NewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	second, err := NewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct tokens")
	}
	if HashToken(first) == HashToken(second) {
		t.Fatal("expected distinct tokens to hash distinctly")
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatal("expected identical input to hash identically")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatal("expected distinct input to hash distinctly")
	}
}

func TestNewCodeShape(t *testing.T) {
	code, err := NewCode()
	if err != nil {
		t.Fatalf("new code: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}
	for _, ch := range code {
		if ch < '0' || ch > '9' {
			t.Fatalf("expected numeric code, got %q", code)
		}
	}
}
