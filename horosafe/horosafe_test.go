package horosafe

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestValidateSecret(t *testing.T) {
	if err := ValidateSecret([]byte("short")); err == nil {
		t.Fatal("expected error for short secret")
	}
	if err := ValidateSecret(bytes.Repeat([]byte("a"), MinSecretLen)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSafePath(t *testing.T) {
	tests := []struct {
		base, input string
		wantErr     bool
	}{
		{"/data/blobs", "uploads/usr_1/book.epub", false},
		{"/data/blobs", "../etc/passwd", true},
		{"/data/blobs", "abc/../def", true},
		{"/data/blobs", "abc/../../outside", true},
		{"/data/blobs", "normal-id_123", false},
	}
	for _, tt := range tests {
		_, err := SafePath(tt.base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q, %q) error=%v, wantErr=%v", tt.base, tt.input, err, tt.wantErr)
		}
	}
}

func TestValidateIdentifier(t *testing.T) {
	good := []string{"usr_123", "ebk-abc.def", "A1"}
	for _, s := range good {
		if err := ValidateIdentifier(s); err != nil {
			t.Errorf("ValidateIdentifier(%q): %v", s, err)
		}
	}
	bad := []string{"", "a/b", "a b", "é", strings.Repeat("x", 257)}
	for _, s := range bad {
		if err := ValidateIdentifier(s); err == nil {
			t.Errorf("ValidateIdentifier(%q): expected error", s)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 5)
	if err != nil || string(data) != "hello" {
		t.Fatalf("at limit: got %q, %v", data, err)
	}
	_, err = LimitedReadAll(strings.NewReader("hello!"), 5)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("over limit: got %v, want ErrTooLarge", err)
	}
}
