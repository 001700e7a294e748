package models

// SafetyLevel is an ordered classification controlling what extra checks a
// tool call requires. Higher values are more restrictive.
type SafetyLevel int

const (
	SafetySafe SafetyLevel = iota
	SafetyCaution
	SafetyRestricted
	SafetyDangerous
	SafetyForbidden
)

// String returns the lowercase name used on the wire and in audit records.
func (l SafetyLevel) String() string {
	switch l {
	case SafetySafe:
		return "safe"
	case SafetyCaution:
		return "caution"
	case SafetyRestricted:
		return "restricted"
	case SafetyDangerous:
		return "dangerous"
	case SafetyForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// ParseSafetyLevel maps a wire string back to a SafetyLevel.
// Unknown strings map to SafetyCaution, the default for unclassified tools.
func ParseSafetyLevel(s string) SafetyLevel {
	switch s {
	case "safe":
		return SafetySafe
	case "caution":
		return SafetyCaution
	case "restricted":
		return SafetyRestricted
	case "dangerous":
		return SafetyDangerous
	case "forbidden":
		return SafetyForbidden
	default:
		return SafetyCaution
	}
}

// MarshalText implements encoding.TextMarshaler so levels serialize as names.
func (l SafetyLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *SafetyLevel) UnmarshalText(b []byte) error {
	*l = ParseSafetyLevel(string(b))
	return nil
}

// ViolationType identifies the class of a policy violation.
type ViolationType string

const (
	ViolationUnauthorizedTool    ViolationType = "unauthorized-tool"
	ViolationForbiddenCommand    ViolationType = "forbidden-command"
	ViolationPIIExposure         ViolationType = "pii-exposure"
	ViolationRateLimit           ViolationType = "rate-limit"
	ViolationDangerousOperation  ViolationType = "dangerous-operation"
	ViolationPRDRequirement      ViolationType = "prd-violation"
	ViolationMissingConfirmation ViolationType = "missing-confirmation"
	ViolationInvalidInput        ViolationType = "invalid-input"
)

// PolicyViolation records a single finding from a safety check.
type PolicyViolation struct {
	Type     ViolationType  `json:"type"`
	Message  string         `json:"message"`
	Severity SafetyLevel    `json:"severity"`
	Blocked  bool           `json:"blocked"`
	Context  map[string]any `json:"context,omitempty"`
}

// SafetyCheckResult is the outcome of a pre-execution or output safety check.
// The engine never errors; allowed=false carries everything needed to
// explain the block to the user.
type SafetyCheckResult struct {
	Allowed              bool              `json:"allowed"`
	Level                SafetyLevel       `json:"level"`
	Violations           []PolicyViolation `json:"violations,omitempty"`
	RequiresConfirmation bool              `json:"requires_confirmation"`
	RequiresApproval     bool              `json:"requires_approval"`
	ContainsPII          bool              `json:"contains_pii,omitempty"`
	Message              string            `json:"message,omitempty"`
}
