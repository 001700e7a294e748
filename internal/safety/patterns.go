// Package safety implements the deterministic policy checkpoint that every
// tool call passes before execution and every LLM output passes before it
// reaches the user. The engine never returns errors; a SafetyCheckResult
// with allowed=false carries everything needed to explain a block.
package safety

import "regexp"

// pattern pairs a compiled regex with its human-readable description, which
// becomes the violation message shown to the user and written to audit.
type pattern struct {
	re   *regexp.Regexp
	desc string
}

func mustPatterns(pairs [][2]string) []pattern {
	out := make([]pattern, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, pattern{re: regexp.MustCompile(p[0]), desc: p[1]})
	}
	return out
}

// forbiddenPatterns block the request outright. Matching any of these forces
// level FORBIDDEN regardless of the tool's registered level.
var forbiddenPatterns = mustPatterns([][2]string{
	{`(?i)\brm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)\s+/(?:\s|$|\*)`, "Recursive root deletion"},
	{`(?i)\bformat\s+c:`, "Disk format command"},
	{`:\(\)\s*\{\s*:\|:&\s*\};:`, "Fork bomb"},
	{`(?i)\bdd\s+if=.*\bof=/dev/(sd|hd|nvme|vd)`, "Direct disk write"},
	{`(?i)\bmkfs\.[a-z0-9]+\s+/dev/`, "Filesystem creation on raw device"},
	{`(?i)\bdrop\s+(database|table)\b`, "Destructive SQL statement"},
	{`-----BEGIN\s+(RSA|EC|DSA|OPENSSH|PGP)?\s*PRIVATE\s+KEY-----`, "Private key material"},
	{`(?i)\b(password|api[_-]?key|secret[_-]?key)\s*=\s*["'][^"']{6,}["']`, "Hard-coded credential assignment"},
	{`(?i)>\s*/dev/(sd|hd|nvme|vd)[a-z]`, "Redirect onto raw disk device"},
})

// dangerousPatterns raise the level to DANGEROUS and require an operator
// approval grant, but do not block by themselves.
var dangerousPatterns = mustPatterns([][2]string{
	{`(?i)\bsudo\b`, "Privilege escalation via sudo"},
	{`(?i)\b(exec|eval)\s*\(`, "Dynamic code execution"},
	{`(?i)\b(shutdown|reboot|poweroff|halt)\b`, "System power control"},
	{`(?i)\bkill\s+-9\b`, "Forced process kill"},
	{`(?i)\b(rm|mv|cp|tee|chmod|chown)\b[^|;&]*\s/etc/`, "Write under /etc"},
	{`(?i)\badmin\b.{0,20}\bdelete\b`, "Administrative delete"},
	{`(?i)\bsystemctl\s+(stop|disable|mask)\b`, "Service teardown"},
})

// cautionPatterns are logged but never block; generic mutating verbs.
var cautionPatterns = mustPatterns([][2]string{
	{`(?i)\bdelete\b`, "Delete operation"},
	{`(?i)\bremove\b`, "Remove operation"},
	{`(?i)\bmodify\b`, "Modify operation"},
	{`(?i)\bwrite\b`, "Write operation"},
	{`(?i)\bexecute\b`, "Execute operation"},
	{`(?i)\boverwrite\b`, "Overwrite operation"},
	{`(?i)\btruncate\b`, "Truncate operation"},
})

// piiPattern pairs a regex with the replacement token used by RedactPII.
type piiPattern struct {
	re          *regexp.Regexp
	desc        string
	replacement string
}

// piiPatterns detect personal data in input and output. The replacement
// tokens deliberately contain no digits so redaction is idempotent.
var piiPatterns = []piiPattern{
	{
		re:          regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		desc:        "US social security number",
		replacement: "[SSN-REDACTED]",
	},
	{
		re:          regexp.MustCompile(`\b(?:\d[ -]?){15,18}\d\b`),
		desc:        "Payment card number",
		replacement: "[CARD-REDACTED]",
	},
	{
		re:          regexp.MustCompile(`\b[A-Z]{1,2}\d{7,9}\b`),
		desc:        "Passport number",
		replacement: "[PASSPORT-REDACTED]",
	},
	{
		re:          regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`),
		desc:        "Email address",
		replacement: "[EMAIL-REDACTED]",
	},
	{
		re:          regexp.MustCompile(`\b(?:\+?1[ -.]?)?\(?\d{3}\)?[ -.]?\d{3}[ -.]?\d{4}\b`),
		desc:        "Phone number",
		replacement: "[PHONE-REDACTED]",
	},
}

// RedactPII replaces PII substrings with redaction tokens. The function is
// idempotent: RedactPII(RedactPII(x)) == RedactPII(x), because no
// replacement token matches any PII pattern.
func RedactPII(text string) string {
	for _, p := range piiPatterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}

// ContainsPII reports whether any PII pattern matches, with descriptions.
func ContainsPII(text string) (bool, []string) {
	var found []string
	for _, p := range piiPatterns {
		if p.re.MatchString(text) {
			found = append(found, p.desc)
		}
	}
	return len(found) > 0, found
}
