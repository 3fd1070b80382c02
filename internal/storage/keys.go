package storage

import (
	"fmt"
	"strings"
	"unicode"
)

// Slugify derives a URL/path-safe identifier from an arbitrary name or URL.
// The same input always yields the same slug.
func Slugify(value string) string {
	base := strings.ToLower(strings.TrimSpace(value))
	if base == "" {
		base = "document"
	}

	var b strings.Builder
	for _, r := range base {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}

	parts := make([]string, 0, 8)
	for _, part := range strings.Split(b.String(), "-") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	slug := strings.Join(parts, "-")
	if slug == "" {
		return "document"
	}
	return slug
}

// SanitizeUserID strips everything but alphanumerics, dashes and underscores.
func SanitizeUserID(userID string) string {
	value := strings.TrimSpace(userID)

	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

// ManifestKey returns the storage key of a user's manifest object.
func ManifestKey(userID, manifestName string) string {
	return fmt.Sprintf("%s/%s", SanitizeUserID(userID), manifestName)
}

// FormSourceKey returns the storage key of the downloaded source form.
func FormSourceKey(userID, formSlug string) string {
	return fmt.Sprintf("%s/forms/%s/source.pdf", SanitizeUserID(userID), formSlug)
}

// FormSchemaKey returns the storage key of the extracted field schema.
func FormSchemaKey(userID, formSlug string) string {
	return fmt.Sprintf("%s/forms/%s/schema.json", SanitizeUserID(userID), formSlug)
}

// FormFilledKey returns the storage key of the filled output document.
func FormFilledKey(userID, formSlug string) string {
	return fmt.Sprintf("%s/forms/%s/filled.pdf", SanitizeUserID(userID), formSlug)
}

// FilledFormURL builds the public URL of the filled output document.
func FilledFormURL(baseURL, userID, formSlug string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(baseURL, "/"), FormFilledKey(userID, formSlug))
}
