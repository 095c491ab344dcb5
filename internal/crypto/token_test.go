package crypto

import "testing"

func TestNewTokenLengthAndUniqueness(t *testing.T) {
	a, err := NewToken()
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != TokenBytes*2 {
		t.Fatalf("expected %d hex chars, got %d", TokenBytes*2, len(a))
	}

	b, err := NewToken()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("two tokens should not collide")
	}
}

func TestTokensEqual(t *testing.T) {
	if !TokensEqual("abc", "abc") {
		t.Fatal("equal values reported unequal")
	}
	if TokensEqual("abc", "abd") {
		t.Fatal("unequal values reported equal")
	}
	if TokensEqual("abc", "abcd") {
		t.Fatal("different lengths reported equal")
	}
}
