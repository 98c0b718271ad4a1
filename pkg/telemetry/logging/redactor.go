package logging

import "regexp"

// Redactor removes credential-bearing substrings from log attribute
// values so tokens never reach the log transport.
type Redactor struct {
	patterns []*redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a Redactor with the built-in credential patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*redactPattern{
			{
				regex:       regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._\-]+`),
				replacement: "Bearer ***",
			},
			{
				regex:       regexp.MustCompile(`(?i)(api[-_]?key|token|secret|passphrase)[=:]\s*\S+`),
				replacement: "$1=***",
			},
			{
				regex:       regexp.MustCompile(`(?i)basic\s+[a-zA-Z0-9+/=]+`),
				replacement: "Basic ***",
			},
		},
	}
}

// Redact returns s with every credential pattern replaced.
func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}
