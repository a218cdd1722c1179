package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

var (
	// uuids from the store, plus numeric ids from documents written by older dashboards
	recordIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	dataURIPattern  = regexp.MustCompile(`^data:image/[a-zA-Z0-9.+-]+;base64,`)
)

// ValidateRecordID validates a prediction id
func ValidateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("prediction ID is required")
	}
	if !recordIDPattern.MatchString(id) {
		return fmt.Errorf("invalid prediction ID format")
	}
	return nil
}

// ValidateImageDataURI checks that image looks like a base64 image data URI.
// Pixel content is not inspected.
func ValidateImageDataURI(image string) error {
	if image == "" {
		return fmt.Errorf("no image provided")
	}
	if !dataURIPattern.MatchString(image) {
		return fmt.Errorf("image must be a base64 data URI (data:image/...;base64,...)")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateLimit clamps a listing limit; zero or negative means everything
func ValidateLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}
