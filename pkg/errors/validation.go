package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// maxTitleLength bounds snapshot titles.
const maxTitleLength = 200

// workflowIDRegex matches identifiers safe to embed in file names and keys.
var workflowIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateWorkflowID validates a workflow identifier used to group snapshots.
// Identifiers end up in file names and store keys, so the rules are
// conservative:
//   - No empty identifiers
//   - Maximum length of 128 characters
//   - Letters, digits, dot, dash and underscore only
//   - No path traversal sequences (..)
func ValidateWorkflowID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "workflow id cannot be empty")
	}
	if len(id) > 128 {
		return New(ErrCodeInvalidInput, "workflow id too long (max 128 characters)")
	}
	if strings.Contains(id, "..") {
		return New(ErrCodeInvalidInput, "workflow id cannot contain path traversal sequences (..)")
	}
	if !workflowIDRegex.MatchString(id) {
		return New(ErrCodeInvalidInput, "invalid workflow id: %q", id)
	}
	return nil
}

// ValidateTitle validates a human-readable snapshot title.
// Titles are trimmed before validation; the trimmed title is returned.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", New(ErrCodeInvalidInput, "title cannot be empty")
	}
	if len(title) > maxTitleLength {
		return "", New(ErrCodeInvalidInput, "title too long (max %d characters)", maxTitleLength)
	}
	for _, r := range title {
		if unicode.IsControl(r) {
			return "", New(ErrCodeInvalidInput, "title contains invalid control characters")
		}
	}
	return title, nil
}

// ValidateFilename validates a workflow filename for safety.
// It ensures the filename is a simple basename without path components.
func ValidateFilename(filename string) error {
	if filename == "" {
		return New(ErrCodeInvalidPath, "filename cannot be empty")
	}

	// Must be a simple filename, not a path
	if strings.ContainsAny(filename, "/\\") {
		return New(ErrCodeInvalidPath, "filename cannot contain path separators")
	}
	if strings.Contains(filename, "..") {
		return New(ErrCodeInvalidPath, "filename cannot contain path traversal sequences (..)")
	}
	if strings.HasPrefix(filename, ".") {
		return New(ErrCodeInvalidPath, "filename cannot be a hidden file")
	}

	for _, r := range filename {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "filename contains invalid characters")
		}
	}
	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	// Simple scheme validation without full URL parsing
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
