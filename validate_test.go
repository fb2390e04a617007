package adbus

import "testing"

func TestObjectPathValidation(t *testing.T) {
	for _, good := range []string{"/", "/a", "/a/b_c", "/org/freedesktop/DBus"} {
		if !isValidObjectPath(good) {
			t.Errorf("isValidObjectPath(%q) = false", good)
		}
	}
	for _, bad := range []string{"", "a", "/a/", "//", "/a//b", "/a-b", "/a.b"} {
		if isValidObjectPath(bad) {
			t.Errorf("isValidObjectPath(%q) = true", bad)
		}
	}
}

func TestInterfaceNameValidation(t *testing.T) {
	for _, good := range []string{"a.b", "org.freedesktop.DBus", "x.Y", "_a._b"} {
		if !isValidInterfaceName(good) {
			t.Errorf("isValidInterfaceName(%q) = false", good)
		}
	}
	for _, bad := range []string{"", "a", "a.", ".a", "a..b", "1a.b", "a.1b", "a.b-c"} {
		if isValidInterfaceName(bad) {
			t.Errorf("isValidInterfaceName(%q) = true", bad)
		}
	}
}

func TestBusNameValidation(t *testing.T) {
	for _, good := range []string{":1.42", "com.example", "com.example-service", ":a.b"} {
		if !isValidBusName(good) {
			t.Errorf("isValidBusName(%q) = false", good)
		}
	}
	for _, bad := range []string{"", "com", ":1", "1com.example", "com..example", "com.example."} {
		if isValidBusName(bad) {
			t.Errorf("isValidBusName(%q) = true", bad)
		}
	}
}

func TestMemberNameValidation(t *testing.T) {
	for _, good := range []string{"M", "Foo", "_private2"} {
		if !isValidMemberName(good) {
			t.Errorf("isValidMemberName(%q) = false", good)
		}
	}
	for _, bad := range []string{"", "1Foo", "Foo.Bar", "Foo-Bar"} {
		if isValidMemberName(bad) {
			t.Errorf("isValidMemberName(%q) = true", bad)
		}
	}
}

func TestCanonicalPath(t *testing.T) {
	cases := map[string]ObjectPath{
		"":         "/",
		"/":        "/",
		"//a//b/":  "/a/b",
		"a/b":      "/a/b",
		"/a/b":     "/a/b",
		"///":      "/",
		"a":        "/a",
	}
	for in, want := range cases {
		if got := CanonicalPath(in); got != want {
			t.Errorf("CanonicalPath(%q) = %q, want %q", in, got, want)
		}
		// Idempotent.
		if got := CanonicalPath(string(want)); got != want {
			t.Errorf("CanonicalPath(%q) not idempotent: %q", want, got)
		}
	}
}

func TestParentPath(t *testing.T) {
	cases := map[ObjectPath]ObjectPath{
		"/":     "/",
		"/a":    "/",
		"/a/b":  "/a",
		"/a/b/c": "/a/b",
	}
	for in, want := range cases {
		if got := parentPath(in); got != want {
			t.Errorf("parentPath(%q) = %q, want %q", in, got, want)
		}
	}
}
