package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrEmptyURL is returned for blank input.
	ErrEmptyURL = errors.New("URL cannot be empty")
	// ErrUnsupportedScheme is returned for anything other than http(s).
	ErrUnsupportedScheme = errors.New("URL must use http or https protocol")
)

// LinkValidator turns the href values found on a listing page into absolute
// article URLs.
type LinkValidator struct {
	// Base resolves relative links. Nil means only absolute links are accepted.
	Base *url.URL
	// MaxLength is the maximum allowed URL length
	MaxLength int
	// KeepFragment retains #fragments; they are dropped by default so the
	// same story linked to different anchors dedupes to one URL.
	KeepFragment bool
}

// NewLinkValidator creates a validator resolving relative links against base.
func NewLinkValidator(base string) (*LinkValidator, error) {
	v := &LinkValidator{MaxLength: 2048}
	if strings.TrimSpace(base) == "" {
		return v, nil
	}

	parsed, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q: %w", base, ErrUnsupportedScheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base URL %q must have a hostname", base)
	}
	v.Base = parsed
	return v, nil
}

// Resolve validates href and returns its absolute, normalized form.
func (v *LinkValidator) Resolve(href string) (string, error) {
	href = strings.TrimSpace(href)

	if href == "" {
		return "", ErrEmptyURL
	}
	if v.MaxLength > 0 && len(href) > v.MaxLength {
		return "", fmt.Errorf("URL too long (max %d characters)", v.MaxLength)
	}
	if strings.ContainsAny(href, "<>\"'`") {
		return "", fmt.Errorf("URL contains invalid characters")
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}

	if !parsed.IsAbs() {
		if v.Base == nil {
			return "", fmt.Errorf("relative URL %q without a base", href)
		}
		parsed = v.Base.ResolveReference(parsed)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ErrUnsupportedScheme
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL must have a valid hostname")
	}

	parsed.Host = strings.ToLower(parsed.Host)
	if !v.KeepFragment {
		parsed.Fragment = ""
		parsed.RawFragment = ""
	}

	return parsed.String(), nil
}

// IsFetchable reports whether raw is an absolute http(s) URL.
func IsFetchable(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrUnsupportedScheme
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}
	return nil
}
