// Package local hosts the in-process validation collaborator. Validation is
// deterministic rule checking, so it runs locally instead of behind an HTTP
// endpoint; it still satisfies the Collaborator contract and runs as the
// pipeline's first stage.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/videogen/orchestrator/internal/collaborator"
	"github.com/videogen/orchestrator/pkg/models"
)

// ValidatorConfig carries the validation limits and the blocked-term list.
type ValidatorConfig struct {
	MinLength    int
	MaxLength    int
	BlockedTerms []string
}

// Validator checks input text for length, format, encoding, and content
// policy compliance.
type Validator struct {
	cfg ValidatorConfig
}

var (
	repeatedCharPattern = regexp.MustCompile(`(.)\1{10,}`)
	urlPattern          = regexp.MustCompile(`https?://\S+`)
	emailPattern        = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern        = regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`)
)

// NewValidator creates a Validator with the given limits.
func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{cfg: cfg}
}

func (v *Validator) Name() string { return "input-validator" }

// Validate runs all checks and aggregates errors and warnings. Warnings never
// make the input invalid.
func (v *Validator) Validate(text string) models.ValidationResult {
	result := models.ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	result.LengthCheck = v.checkLength(text)
	result.FormatCheck = v.checkFormat(text)
	result.ContentPolicyCheck = v.checkContentPolicy(text)
	encoding := v.checkEncoding(text)

	for _, check := range []map[string]any{
		result.LengthCheck, result.FormatCheck, result.ContentPolicyCheck, encoding,
	} {
		if errs, ok := check["errors"].([]string); ok {
			result.Errors = append(result.Errors, errs...)
		}
		if warns, ok := check["warnings"].([]string); ok {
			result.Warnings = append(result.Warnings, warns...)
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// Invoke satisfies the Collaborator contract for the validation stage. An
// invalid input is a fatal, never-retried failure.
func (v *Validator) Invoke(ctx context.Context, input models.StageInput) (*models.StageResult, error) {
	result := v.Validate(input.Text)
	data, err := json.Marshal(result)
	if err != nil {
		return nil, collaborator.NewFatal("encode_result", err)
	}
	if !result.IsValid {
		return nil, collaborator.NewFatal("validation_failed",
			fmt.Errorf("input validation failed: %s", strings.Join(result.Errors, "; ")))
	}
	return &models.StageResult{Data: data}, nil
}

func (v *Validator) checkLength(text string) map[string]any {
	length := len([]rune(strings.TrimSpace(text)))
	check := map[string]any{
		"actual_length": length,
		"min_length":    v.cfg.MinLength,
		"max_length":    v.cfg.MaxLength,
	}
	var errs []string
	if length < v.cfg.MinLength {
		errs = append(errs, fmt.Sprintf("text too short: minimum length is %d characters", v.cfg.MinLength))
	}
	if length > v.cfg.MaxLength {
		errs = append(errs, fmt.Sprintf("text too long: maximum length is %d characters", v.cfg.MaxLength))
	}
	check["errors"] = errs
	check["is_valid"] = len(errs) == 0
	return check
}

func (v *Validator) checkFormat(text string) map[string]any {
	var errs []string

	lineBreaks := strings.Count(text, "\n")
	if lineBreaks > 10 {
		errs = append(errs, "text contains too many line breaks")
	}
	if repeatedCharPattern.MatchString(text) {
		errs = append(errs, "text contains excessive repeated characters")
	}

	return map[string]any{
		"is_valid":    len(errs) == 0,
		"errors":      errs,
		"line_breaks": lineBreaks,
	}
}

func (v *Validator) checkContentPolicy(text string) map[string]any {
	var errs []string
	var warns []string

	lower := strings.ToLower(text)
	for _, term := range v.cfg.BlockedTerms {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			errs = append(errs, fmt.Sprintf("content policy violation: %q detected", term))
		}
	}

	for name, pattern := range map[string]*regexp.Regexp{
		"url":   urlPattern,
		"email": emailPattern,
		"phone": phonePattern,
	} {
		if pattern.MatchString(text) {
			warns = append(warns, fmt.Sprintf("potential spam content detected: %s", name))
		}
	}

	capsRatio := uppercaseRatio(text)
	if capsRatio > 0.5 {
		warns = append(warns, "excessive capitalization detected")
	}

	return map[string]any{
		"is_valid":   len(errs) == 0,
		"errors":     errs,
		"warnings":   warns,
		"caps_ratio": capsRatio,
	}
}

func (v *Validator) checkEncoding(text string) map[string]any {
	var errs []string

	if !utf8.ValidString(text) {
		errs = append(errs, "text is not valid UTF-8")
	}

	controlChars := 0
	for _, r := range text {
		if r < 32 && r != '\n' && r != '\t' && r != '\r' {
			controlChars++
		}
	}
	if controlChars > 0 {
		errs = append(errs, "text contains invalid control characters")
	}

	return map[string]any{
		"is_valid":            len(errs) == 0,
		"errors":              errs,
		"control_chars_found": controlChars,
	}
}

// uppercaseRatio counts uppercase letters against all letters. Scripts
// without case (Telugu, Devanagari) contribute no letters to the numerator,
// so non-Latin input never trips the capitalization warning.
func uppercaseRatio(text string) float64 {
	if text == "" {
		return 0
	}
	upper := 0
	total := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			total++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(upper) / float64(total)
}

var _ models.Collaborator = (*Validator)(nil)
