package store

import (
	"fmt"
	"strings"
)

// ValidateSegment validates that an identifier (group ID, user ID, session
// ID) is safe to join into a filesystem path: non-empty and free of path
// separators and "..". This is a security boundary, not a style rule:
// identifiers arrive from untrusted platform input.
func ValidateSegment(segment string) error {
	trimmed := strings.TrimSpace(segment)
	if trimmed == "" {
		return fmt.Errorf("%w: empty segment", ErrPathSegmentUnsafe)
	}
	if trimmed != segment {
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrPathSegmentUnsafe, segment)
	}
	if strings.ContainsAny(segment, "/\\") || strings.Contains(segment, "..") {
		return fmt.Errorf("%w: %q contains path separators or '..'", ErrPathSegmentUnsafe, segment)
	}
	if segment == "." {
		return fmt.Errorf("%w: %q", ErrPathSegmentUnsafe, segment)
	}
	return nil
}
