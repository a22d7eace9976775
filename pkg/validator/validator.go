package validator

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Regex patterns for validation
var (
	// Email: RFC 5322 simplified pattern
	EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// Langcode: "en", "vi", "pt-br", "zh-hans"
	LangcodeRegex = regexp.MustCompile(`^[a-z]{2,3}(-[a-z0-9]{2,8})?$`)

	TitleMaxLength = 255
	LogMaxLength   = 1024
)

// ValidateEmail validates email format
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}

	if len(email) > 254 {
		return fmt.Errorf("email too long: maximum 254 characters")
	}

	if !EmailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}

	return nil
}

// ValidateLangcode validates a lower-case language code
func ValidateLangcode(langcode string) error {
	if langcode == "" {
		return fmt.Errorf("langcode is required")
	}

	if !LangcodeRegex.MatchString(langcode) {
		return fmt.Errorf("invalid langcode %q", langcode)
	}

	return nil
}

// ValidateTitle validates an agreement title
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required")
	}

	if utf8.RuneCountInString(title) > TitleMaxLength {
		return fmt.Errorf("title too long: maximum %d characters", TitleMaxLength)
	}

	return nil
}

// ValidateLogMessage validates an optional revision log message
func ValidateLogMessage(msg string) error {
	if utf8.RuneCountInString(msg) > LogMaxLength {
		return fmt.Errorf("log message too long: maximum %d characters", LogMaxLength)
	}
	return nil
}

// ValidateRedirectURL accepts "" (unset), a site path or an absolute http(s) URL
func ValidateRedirectURL(raw string) error {
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "/") {
		return ValidateLocalPath(raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid redirect url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("redirect url must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("redirect url must have a host")
	}

	return nil
}

// ValidateLocalPath accepts only same-site paths, rejecting "//host" and "/\host"
func ValidateLocalPath(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}

	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.HasPrefix(path, `/\`) {
		return fmt.Errorf("path must be site-relative")
	}

	u, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if u.Scheme != "" || u.Host != "" {
		return fmt.Errorf("path must be site-relative")
	}

	return nil
}
