package utils

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New()

	// Hostname regex must match valid hostnames
	hostnameRegex = regexp.MustCompile(`^(([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9\-_]*[a-zA-Z0-9])\.)*([A-Za-z0-9]|[A-Za-z0-9][A-Za-z0-9\-]*[A-Za-z0-9])\.?$`)
)

// MaxTargetLength bounds the length of a scan target
const MaxTargetLength = 2048

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsSensitiveField checks if a field is sensitive and should not be logged
func IsSensitiveField(field string) bool {
	lowerField := strings.ToLower(field)
	for _, sensitive := range []string{"password", "token", "secret", "key", "auth", "cred", "cookie"} {
		if strings.Contains(lowerField, sensitive) {
			return true
		}
	}
	return false
}

// SanitizeValue renders a value for logging
func SanitizeValue(field string, value interface{}) string {
	if IsSensitiveField(field) {
		return "[REDACTED]"
	}
	if v, ok := value.(string); ok {
		if len(v) > 100 {
			return v[:97] + "..."
		}
		return v
	}
	return fmt.Sprintf("%v", value)
}

// ValidationResult contains the result of a validation operation.
type ValidationResult struct {
	Errors []*ValidationError `json:"errors"`
}

// NewValidationResult creates a new ValidationResult.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{Errors: []*ValidationError{}}
}

// AddError adds an error to the validation result.
func (vr *ValidationResult) AddError(field, code, message string, value ...interface{}) {
	var valueStr string
	if len(value) > 0 {
		valueStr = SanitizeValue(field, value[0])
	}
	vr.Errors = append(vr.Errors, &ValidationError{
		Field:   field,
		Code:    code,
		Message: message,
		Value:   valueStr,
	})
}

// IsValid returns true if the validation passed.
func (vr *ValidationResult) IsValid() bool {
	return len(vr.Errors) == 0
}

// First returns the first error or nil if there are no errors.
func (vr *ValidationResult) First() *ValidationError {
	if len(vr.Errors) == 0 {
		return nil
	}
	return vr.Errors[0]
}

// ErrorMessages returns all error messages.
func (vr *ValidationResult) ErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = err.Error()
	}
	return messages
}

// ValidateStruct validates a struct using validator tags
func ValidateStruct(s interface{}) *ValidationResult {
	result := NewValidationResult()
	err := validate.Struct(s)
	if err == nil {
		return result
	}
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		result.AddError("validation", "INVALID_STRUCT", "Invalid validation input")
		return result
	}

	for _, fe := range validationErrs {
		field := fe.Field()
		param := fe.Param()

		var message string
		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "min", "gte":
			message = fmt.Sprintf("%s must be at least %s", field, param)
		case "max", "lte":
			message = fmt.Sprintf("%s must be at most %s", field, param)
		case "oneof":
			message = fmt.Sprintf("%s must be one of [%s]", field, param)
		default:
			message = fmt.Sprintf("%s failed validation: %s=%s", field, fe.Tag(), param)
		}
		result.AddError(field, strings.ToUpper(fe.Tag()), message, fe.Value())
	}
	return result
}

// ValidateScanTarget checks that target names something a provider can scan:
// a hostname, an IP address, a CIDR range or an http(s) URL.
func ValidateScanTarget(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return &ValidationError{Field: "target", Code: "REQUIRED", Message: "target is required"}
	}
	if len(target) > MaxTargetLength {
		return &ValidationError{
			Field:   "target",
			Code:    "TOO_LONG",
			Message: fmt.Sprintf("target exceeds maximum length of %d", MaxTargetLength),
		}
	}
	for _, r := range target {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return &ValidationError{
				Field:   "target",
				Code:    "INVALID_FORMAT",
				Message: "target must not contain whitespace or control characters",
				Value:   SanitizeValue("target", target),
			}
		}
	}

	if strings.Contains(target, "://") {
		return ValidateURL(target, []string{"http", "https"})
	}
	if net.ParseIP(target) != nil {
		return nil
	}
	if _, _, err := net.ParseCIDR(target); err == nil {
		return nil
	}
	host := target
	if h, _, err := net.SplitHostPort(target); err == nil {
		host = h
	}
	if hostnameRegex.MatchString(host) {
		return nil
	}
	return &ValidationError{
		Field:   "target",
		Code:    "INVALID_FORMAT",
		Message: "target must be a hostname, IP address, CIDR range or http(s) URL",
		Value:   SanitizeValue("target", target),
	}
}

// ValidateURL validates an absolute URL whose scheme is in allowedSchemes
func ValidateURL(rawURL string, allowedSchemes []string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{
			Field:   "url",
			Code:    "INVALID_FORMAT",
			Message: "Invalid URL format: " + err.Error(),
			Value:   rawURL,
		}
	}
	if parsedURL.Scheme == "" {
		return &ValidationError{
			Field:   "url",
			Code:    "MISSING_SCHEME",
			Message: "URL must have a scheme (e.g., http, https)",
			Value:   rawURL,
		}
	}
	if len(allowedSchemes) > 0 {
		allowed := false
		for _, scheme := range allowedSchemes {
			if strings.EqualFold(parsedURL.Scheme, scheme) {
				allowed = true
				break
			}
		}
		if !allowed {
			return &ValidationError{
				Field:   "url",
				Code:    "INVALID_SCHEME",
				Message: fmt.Sprintf("URL scheme '%s' is not allowed. Allowed schemes: %s", parsedURL.Scheme, strings.Join(allowedSchemes, ", ")),
				Value:   rawURL,
			}
		}
	}
	if parsedURL.Host == "" {
		return &ValidationError{
			Field:   "url",
			Code:    "MISSING_HOST",
			Message: "URL must have a host",
			Value:   rawURL,
		}
	}
	return nil
}

// RedactSensitiveData redacts sensitive data from a map
func RedactSensitiveData(data map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(data))
	for k, v := range data {
		if IsSensitiveField(k) {
			result[k] = "[REDACTED]"
			continue
		}
		switch value := v.(type) {
		case map[string]interface{}:
			result[k] = RedactSensitiveData(value)
		case []interface{}:
			redacted := make([]interface{}, len(value))
			for i, item := range value {
				if mapItem, ok := item.(map[string]interface{}); ok {
					redacted[i] = RedactSensitiveData(mapItem)
				} else {
					redacted[i] = item
				}
			}
			result[k] = redacted
		default:
			result[k] = v
		}
	}
	return result
}
