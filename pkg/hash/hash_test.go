package hash

import "testing"

func TestHashAndCheck(t *testing.T) {
	h, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if h == "s3cret-pass" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !CheckPassword(h, "s3cret-pass") {
		t.Error("expected matching password to verify")
	}
	if CheckPassword(h, "wrong") {
		t.Error("expected wrong password to be rejected")
	}
}
