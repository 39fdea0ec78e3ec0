package models

// ValidationResult is the outcome of the synchronous input validation checks:
// content policy, length, format, and encoding. Input errors are surfaced
// immediately and never retried.
type ValidationResult struct {
	IsValid            bool           `json:"is_valid"`
	Errors             []string       `json:"errors"`
	Warnings           []string       `json:"warnings"`
	ContentPolicyCheck map[string]any `json:"content_policy_check"`
	LengthCheck        map[string]any `json:"length_check"`
	FormatCheck        map[string]any `json:"format_check"`
}
