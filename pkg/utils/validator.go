package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	resourcePathRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]*(/[A-Za-z0-9._\-]+)*$`)
	fieldNameRegex    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	controlCharsRegex = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// ValidateResourcePath validates a backend resource path relative to the base URL, e.g. "sales-rfq-parcel"
func ValidateResourcePath(path string) error {
	if !resourcePathRegex.MatchString(path) {
		return fmt.Errorf("invalid resource path: %q", path)
	}
	return nil
}

// ValidateFieldName validates a backend column name such as "SalesRFQID"
func ValidateFieldName(name string) error {
	if !fieldNameRegex.MatchString(name) {
		return fmt.Errorf("invalid field name: %q", name)
	}
	return nil
}

// ValidateBaseURL validates an absolute http(s) URL
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL must be http or https: %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("base URL has no host: %q", raw)
	}
	return nil
}

// SanitizeString removes control characters, e.g. from backend messages before they reach a notification
func SanitizeString(s string) string {
	return strings.TrimSpace(controlCharsRegex.ReplaceAllString(s, ""))
}
