package adbus

import "testing"

func TestAlignmentOf(t *testing.T) {
	cases := map[byte]int{
		'y': 1, 'g': 1, 'v': 1,
		'n': 2, 'q': 2,
		'b': 4, 'i': 4, 'u': 4, 's': 4, 'o': 4, 'a': 4,
		'x': 8, 't': 8, 'd': 8, '(': 8, '{': 8,
	}
	for code, want := range cases {
		if got := alignmentOf(code); got != want {
			t.Errorf("alignmentOf(%c) = %d, want %d", code, got, want)
		}
	}
	if alignmentOf('z') != 0 {
		t.Error("alignmentOf should reject unknown codes")
	}
}

func TestSigSkipType(t *testing.T) {
	cases := []struct {
		sig  string
		next int
	}{
		{"i", 1},
		{"ai", 2},
		{"aai", 3},
		{"(yu)", 4},
		{"(y(ss)u)", 8},
		{"a{sv}", 5},
		{"a{s(ii)}x", 8},
		{"v", 1},
	}
	for _, c := range cases {
		next, err := sigSkipType(c.sig, 0)
		if err != nil {
			t.Errorf("sigSkipType(%q): %v", c.sig, err)
			continue
		}
		if next != c.next {
			t.Errorf("sigSkipType(%q) = %d, want %d", c.sig, next, c.next)
		}
	}

	for _, bad := range []string{"", "z", "a", "(", "(i", "{vi}", "a{s", "{s}"} {
		if _, err := sigSkipType(bad, 0); err == nil {
			t.Errorf("sigSkipType(%q) should fail", bad)
		}
	}
}

func TestValidSignature(t *testing.T) {
	for _, good := range []string{"", "i", "susv", "a{sa{sv}}", "(yu)(yu)", "aaaai"} {
		if !validSignature(good) {
			t.Errorf("validSignature(%q) = false", good)
		}
	}
	for _, bad := range []string{"e", ")", "a", "(})"} {
		if validSignature(bad) {
			t.Errorf("validSignature(%q) = true", bad)
		}
	}
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'i'
	}
	if validSignature(string(long)) {
		t.Error("over-long signature accepted")
	}
}

func TestValidSingleType(t *testing.T) {
	if !validSingleType("a{sv}") || !validSingleType("i") {
		t.Error("single complete types rejected")
	}
	for _, bad := range []string{"", "ii", "ai i"} {
		if validSingleType(bad) {
			t.Errorf("validSingleType(%q) = true", bad)
		}
	}
}
