// Package redact removes sensitive information from strings before they are
// logged, returned in error responses or stored in job records.
package redact

import "regexp"

// Placeholders substituted for redacted content.
const (
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedHostPlaceholder       = "[REDACTED_HOST]"
)

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

// secretRules match credentials of the providers and backends the service talks to.
var secretRules = []rule{
	// user:password@ in connection strings and URLs
	{regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*)://[^/@\s]+@`), "$1://" + RedactedCredentialPlaceholder + "@"},
	// password=..., pwd: ...
	{regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]+['"]?)[^'"&\s]{3,}`), "$1$2" + RedactedCredentialPlaceholder},
	// Authorization: Bearer ...
	{regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9_\-.~+/=]{8,}`), "$1" + RedactedKeyPlaceholder},
	// AWS access key IDs
	{regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`), RedactedKeyPlaceholder},
	// OpenAI keys
	{regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{16,}`), RedactedKeyPlaceholder},
	// Google API keys
	{regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{30,}`), RedactedKeyPlaceholder},
	// api_key=..., secret: ..., x-api-key ...
	{regexp.MustCompile(`(?i)(api[_-]?key|secret|token|signature)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`), "$1$2" + RedactedKeyPlaceholder},
}

// detailRules match infrastructure details that clients do not need to see.
var detailRules = []rule{
	{regexp.MustCompile(`(/[\w.-]+){2,}`), RedactedPathPlaceholder},
	{regexp.MustCompile(`[A-Za-z]:\\[^\\\s]+(\\[^\\\s]+)+`), RedactedPathPlaceholder},
	{regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+(?:com|net|org|io|internal|local)(?::\d{1,5})?\b`), RedactedHostPlaceholder},
}

func apply(input string, rules []rule) string {
	for _, r := range rules {
		input = r.pattern.ReplaceAllString(input, r.placeholder)
	}
	return input
}

// Secrets removes credentials and keys but keeps paths and hosts. It is used
// for messages stored in job records, where the operator still needs context.
func Secrets(input string) string {
	if input == "" {
		return input
	}
	return apply(input, secretRules)
}

// String removes credentials, keys, file paths and host names.
func String(input string) string {
	if input == "" {
		return input
	}
	return apply(apply(input, secretRules), detailRules)
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
