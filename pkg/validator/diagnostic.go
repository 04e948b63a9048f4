package validator

// Diagnostic is a non-fatal finding about a graph that passed validation.
type Diagnostic struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
}

const (
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Diagnostic codes.
const (
	CodeUnknownNodeType  = "GV-001" // node type outside the catalog
	CodeParameterSchema  = "GV-002" // parameters do not match the catalog schema
	CodeTypeVersionReset = "GV-003" // non-numeric typeVersion replaced by the default
)
