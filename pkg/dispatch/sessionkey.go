package dispatch

import "strconv"

// SessionKey is the result of parsing an optional "#<n>" prefix that
// selects a parallel conversation slot.
type SessionKey struct {
	Key       int
	Content   string
	PrefixLen int
}

// ExtractSessionKey parses an optional leading "#<digits>" prefix,
// terminated by whitespace or end of string. On a match the prefix (plus
// exactly one following space, if present) is stripped from Content.
//
// A malformed prefix ("#-1", "#x", bare "#") is never treated as a key:
// the original text passes through verbatim so downstream matchers (dice,
// command prefixes) still see it.
func ExtractSessionKey(text string) SessionKey {
	passthrough := SessionKey{Key: 0, Content: text, PrefixLen: 0}

	i := 0
	for i < len(text) && isSpace(text[i]) {
		i++
	}
	if i >= len(text) || text[i] != '#' {
		return passthrough
	}

	digitsStart := i + 1
	j := digitsStart
	for j < len(text) && text[j] >= '0' && text[j] <= '9' {
		j++
	}
	if j == digitsStart {
		return passthrough
	}
	if j < len(text) && !isSpace(text[j]) {
		return passthrough
	}

	key, err := strconv.Atoi(text[digitsStart:j])
	if err != nil || key < 0 {
		// Overflow or otherwise unparseable: passthrough.
		return passthrough
	}

	end := j
	if end < len(text) && text[end] == ' ' {
		end++
	}
	return SessionKey{Key: key, Content: text[end:], PrefixLen: end}
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
