package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// SourceIDRegex validates stream source ID format
	SourceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// AnalyzerRegex validates names listed in aiSources
	AnalyzerRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

var (
	validTypes      = map[string]bool{"main": true, "detection": true, "custom": true}
	validProtocols  = map[string]bool{"webrtc": true, "rtmp": true, "hls": true}
	validTransports = map[string]bool{"whep": true, "udp": true, "tcp": true}
	allowedSchemes  = map[string]bool{"http": true, "https": true, "ws": true, "wss": true, "rtmp": true, "rtmps": true}
)

// ValidateSourceID validates a stream source ID. Empty is allowed: the
// store generates one.
func ValidateSourceID(id string) error {
	if id == "" {
		return nil
	}
	if len(id) > 100 {
		return fmt.Errorf("source ID is too long (max 100 characters)")
	}
	if !SourceIDRegex.MatchString(id) {
		return fmt.Errorf("invalid source ID format")
	}
	return nil
}

// ValidateLabel validates a display label
func ValidateLabel(label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return fmt.Errorf("label is required")
	}
	if utf8.RuneCountInString(label) > 100 {
		return fmt.Errorf("label is too long (max 100 characters)")
	}
	if !utf8.ValidString(label) {
		return fmt.Errorf("label contains invalid characters")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if !allowedSchemes[u.Scheme] {
		return fmt.Errorf("invalid URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateSignalingURL validates a WHEP endpoint, which is always HTTP(S).
func ValidateSignalingURL(urlStr string) error {
	if err := ValidateURL(urlStr); err != nil {
		return err
	}
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		return fmt.Errorf("signaling URL must use http or https")
	}
	return nil
}

// ValidateEnum checks value against one of the source enumerations. Empty
// values are accepted and defaulted later.
func ValidateEnum(field, value string) error {
	if value == "" {
		return nil
	}
	var allowed map[string]bool
	switch field {
	case "type":
		allowed = validTypes
	case "protocol":
		allowed = validProtocols
	case "transport":
		allowed = validTransports
	default:
		return fmt.Errorf("unknown field %s", field)
	}
	if !allowed[value] {
		return fmt.Errorf("invalid %s %q", field, value)
	}
	return nil
}

// ValidateAnalyzers validates the aiSources list
func ValidateAnalyzers(names []string) error {
	if len(names) > 16 {
		return fmt.Errorf("too many analyzers (max 16)")
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if !AnalyzerRegex.MatchString(n) {
			return fmt.Errorf("invalid analyzer name %q", n)
		}
		if seen[n] {
			return fmt.Errorf("duplicate analyzer name %q", n)
		}
		seen[n] = true
	}
	return nil
}

// ValidateMaxConcurrency validates the pool size bound
func ValidateMaxConcurrency(n int) error {
	if n < 1 {
		return fmt.Errorf("max concurrency must be at least 1")
	}
	if n > 64 {
		return fmt.Errorf("max concurrency is too high (max 64)")
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
