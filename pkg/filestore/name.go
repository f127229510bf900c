package filestore

import (
	"strings"
)

// DefaultMaxNameLength is used when Options.MaxNameLength is zero.
const DefaultMaxNameLength = 256

// ValidateName checks that name can be stored in the directory. Names are
// flat: they may not be empty, exceed maxLen bytes, contain NUL or '/', or
// be "." or "..".
func ValidateName(name string, maxLen int) error {
	if name == "" {
		return ErrInvalidName
	}

	if maxLen <= 0 {
		maxLen = DefaultMaxNameLength
	}
	if len(name) > maxLen {
		return ErrInvalidName
	}

	if strings.ContainsAny(name, "\x00/") {
		return ErrInvalidName
	}

	if name == "." || name == ".." {
		return ErrInvalidName
	}

	return nil
}
