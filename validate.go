package adbus

import (
	"strings"
	"unicode/utf8"
)

func isNameByte(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') || c == '_'
}

// isValidObjectPath checks the object path grammar: a leading '/', no
// trailing '/' except for the root, and [A-Za-z0-9_] segments with no
// empty segment.
func isValidObjectPath(s string) bool {
	if s == "" || s[0] != '/' {
		return false
	}
	if len(s) > 1 && s[len(s)-1] == '/' {
		return false
	}
	slash := 0
	for i := 1; i < len(s); i++ {
		if s[i] == '/' {
			if i-slash == 1 {
				return false
			}
			slash = i
		} else if !isNameByte(s[i]) {
			return false
		}
	}
	return true
}

// isValidInterfaceName checks dotted interface names: 1-255 bytes, at
// least one '.', each element starting with a non-digit.
func isValidInterfaceName(s string) bool {
	if s == "" || len(s) > 255 {
		return false
	}
	if !isNameByte(s[0]) || ('0' <= s[0] && s[0] <= '9') {
		return false
	}
	dot := -1
	for i := 1; i < len(s); i++ {
		if s[i] == '.' {
			if i-dot == 1 {
				return false
			}
			if i+1 < len(s) && '0' <= s[i+1] && s[i+1] <= '9' {
				return false
			}
			dot = i
		} else if !isNameByte(s[i]) {
			return false
		}
	}
	return dot > 0 && dot != len(s)-1
}

// isValidBusName accepts unique names (":N.M" style) and well-known
// names.  Well-known name elements additionally allow '-'.
func isValidBusName(s string) bool {
	if s == "" || len(s) > 255 {
		return false
	}
	unique := s[0] == ':'
	if !unique && !isNameByte(s[0]) && s[0] != '-' {
		return false
	}
	if !unique && '0' <= s[0] && s[0] <= '9' {
		return false
	}
	dot := -1
	if unique {
		dot = 0
	}
	for i := 1; i < len(s); i++ {
		if s[i] == '.' {
			if i-dot == 1 {
				return false
			}
			if !unique && i+1 < len(s) && '0' <= s[i+1] && s[i+1] <= '9' {
				return false
			}
			dot = i
		} else if !isNameByte(s[i]) && s[i] != '-' {
			return false
		}
	}
	return dot > 0 && dot != len(s)-1
}

// isValidMemberName checks method/signal/property names: 1-255 bytes of
// [A-Za-z0-9_], not starting with a digit, no '.'.
func isValidMemberName(s string) bool {
	if s == "" || len(s) > 255 {
		return false
	}
	if '0' <= s[0] && s[0] <= '9' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isNameByte(s[i]) {
			return false
		}
	}
	return true
}

// isValidUTF8 wraps utf8.Valid, which already rejects overlong
// encodings, surrogates and codepoints above U+10FFFF.
func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}

// CanonicalPath normalises an object path: a leading '/' is prepended
// if missing, runs of '/' collapse, and a trailing '/' is dropped
// except at the root.  CanonicalPath is idempotent.
func CanonicalPath(path string) ObjectPath {
	var b strings.Builder
	b.Grow(len(path) + 1)
	b.WriteByte('/')
	prevSlash := true
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if !prevSlash {
				b.WriteByte('/')
			}
			prevSlash = true
		} else {
			b.WriteByte(path[i])
			prevSlash = false
		}
	}
	s := b.String()
	if len(s) > 1 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return ObjectPath(s)
}

// parentPath returns the canonical path one level up, or "/" when p is
// already the root.
func parentPath(p ObjectPath) ObjectPath {
	i := strings.LastIndexByte(string(p), '/')
	if i <= 0 {
		return "/"
	}
	return p[:i]
}
