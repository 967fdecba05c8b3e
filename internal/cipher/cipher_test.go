package cipher

import "testing"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := New("test-secret")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return codec
}

func TestRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	texts := []string{"", "Let's collab", "unicode ✍️ text", "a longer body with\nmultiple lines"}
	for _, text := range texts {
		token, err := codec.Encrypt(text)
		if err != nil {
			t.Fatalf("encrypt %q: %v", text, err)
		}
		if token == text && text != "" {
			t.Fatalf("expected opaque token for %q", text)
		}
		decrypted, err := codec.Decrypt(token)
		if err != nil {
			t.Fatalf("decrypt %q: %v", text, err)
		}
		if decrypted != text {
			t.Fatalf("round trip mismatch: got %q want %q", decrypted, text)
		}
	}
}

func TestDistinctPlaintextsProduceDistinctTokens(t *testing.T) {
	codec := newTestCodec(t)
	first, err := codec.Encrypt("one")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	second, err := codec.Encrypt("two")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct plaintexts to encrypt distinctly")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	codec := newTestCodec(t)
	token, err := codec.Encrypt("original")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := codec.Decrypt("not-base64!!"); err == nil {
		t.Fatal("expected error for malformed token")
	}
	if _, err := codec.Decrypt(token[:len(token)-4]); err == nil {
		t.Fatal("expected error for truncated token")
	}

	other, err := New("different-secret")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := other.Decrypt(token); err == nil {
		t.Fatal("expected error when decrypting with the wrong key")
	}
}
