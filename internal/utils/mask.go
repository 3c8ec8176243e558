// Package utils holds small helpers shared across the pipeline: credential
// masking for logs and CLI output, and JSON encoding for vendor wire bodies.
package utils

// mask abbreviates a secret, keeping prefix and suffix characters visible.
// Secrets too short to hide a meaningful middle are blanked entirely.
func mask(secret string, prefix, suffix int) string {
	if len(secret) < prefix+suffix+4 {
		return "****"
	}
	return secret[:prefix] + "..." + secret[len(secret)-suffix:]
}

// MaskKey abbreviates an API key for CLI output, first 8 and last 4
// characters. Empty keys render as "(empty)" so a missing credential is
// visible in provider listings.
func MaskKey(key string) string {
	if key == "" {
		return "(empty)"
	}
	return mask(key, 8, 4)
}

// MaskKeyShort is the compact form used in log fields, first 4 and last 4.
func MaskKeyShort(key string) string {
	return mask(key, 4, 4)
}
