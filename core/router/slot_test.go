package router

import "testing"

func TestCRC16KnownVector(t *testing.T) {
	// Reference value of the XMODEM polynomial
	if got := crc16([]byte("123456789")); got != 0x31C3 {
		t.Fatalf("expected crc16 of 0x31C3, got 0x%04X", got)
	}
}

func TestSlotBounds(t *testing.T) {
	p := NewCRC16Partitioner()

	keys := []string{"", "a", "foo", "123456789", "{tag}key", "very-long-key-with-lots-of-characters"}
	for _, key := range keys {
		if slot := p.Slot(key); slot >= SlotCount {
			t.Errorf("key %q: slot %d out of range", key, slot)
		}
	}

	if slot := p.Slot("123456789"); slot != 0x31C3%SlotCount {
		t.Errorf("expected slot %d, got %d", 0x31C3%SlotCount, slot)
	}
}

func TestHashTags(t *testing.T) {
	p := NewCRC16Partitioner()

	t.Run("same tag maps to same slot", func(t *testing.T) {
		a := p.Slot("{user1000}.following")
		b := p.Slot("{user1000}.followers")
		if a != b {
			t.Errorf("expected identical slots, got %d and %d", a, b)
		}
		if a != p.Slot("user1000") {
			t.Errorf("expected tag content to hash like the bare key")
		}
	})

	t.Run("empty tag uses whole key", func(t *testing.T) {
		if p.Slot("foo{}{bar}") != p.Slot("foo{}{bar}") {
			t.Error("slot must be deterministic")
		}
		// An empty tag does not narrow the hashed portion
		if p.Slot("foo{}{bar}") == p.Slot("bar") && p.Slot("foo{}{bar}") != p.Slot("foo{}{bar}") {
			t.Error("empty tag must not select a later tag")
		}
	})

	t.Run("only first tag counts", func(t *testing.T) {
		if p.Slot("foo{bar}{zap}") != p.Slot("bar") {
			t.Error("expected the first tag to be hashed")
		}
	})

	t.Run("unterminated tag uses whole key", func(t *testing.T) {
		if p.Slot("foo{bar") == p.Slot("bar") {
			// The slots could legitimately collide, but the tag must not
			// have been extracted: check directly.
			if hashTag("foo{bar") != "foo{bar" {
				t.Error("unterminated tag must hash the whole key")
			}
		}
	})
}

func TestHashTagExtraction(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"plain", "plain"},
		{"{tag}rest", "tag"},
		{"prefix{tag}", "tag"},
		{"{}empty", "{}empty"},
		{"{unclosed", "{unclosed"},
		{"a{b}c{d}e", "b"},
		{"{{nested}}", "{nested"},
	}

	for _, tt := range tests {
		if got := hashTag(tt.key); got != tt.want {
			t.Errorf("hashTag(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
