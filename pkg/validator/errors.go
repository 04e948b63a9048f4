package validator

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaViolation indicates a structural defect the repairer cannot fix.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrDanglingConnection indicates an edge that names a node missing from the graph.
	ErrDanglingConnection = errors.New("dangling connection")
)

// SchemaError names the first violated invariant of a candidate graph.
type SchemaError struct {
	Path     string // JSON path of the offending field, e.g. "nodes[2].type"
	NodeName string // Node name or id when the violation is node-scoped
	Message  string
}

func (e *SchemaError) Error() string {
	if e.NodeName != "" {
		return fmt.Sprintf("%v at %s (node %q): %s", ErrSchemaViolation, e.Path, e.NodeName, e.Message)
	}

	if e.Path != "" {
		return fmt.Sprintf("%v at %s: %s", ErrSchemaViolation, e.Path, e.Message)
	}

	return fmt.Sprintf("%v: %s", ErrSchemaViolation, e.Message)
}

func (e *SchemaError) Unwrap() error {
	return ErrSchemaViolation
}

// DanglingConnectionError reports an edge endpoint that does not resolve to a node.
type DanglingConnectionError struct {
	Source   string
	Target   string
	PortKind string
	// Missing is "source" when the connection key is unknown, "target" otherwise.
	Missing string
}

func (e *DanglingConnectionError) Error() string {
	if e.Missing == "source" {
		return fmt.Sprintf("%v: connection source %q is not a node in the graph", ErrDanglingConnection, e.Source)
	}

	return fmt.Sprintf("%v: edge %q -[%s]-> %q references a node that does not exist",
		ErrDanglingConnection, e.Source, e.PortKind, e.Target)
}

func (e *DanglingConnectionError) Unwrap() error {
	return ErrDanglingConnection
}

// IsSchemaViolation checks if an error is a schema violation.
func IsSchemaViolation(err error) bool {
	return errors.Is(err, ErrSchemaViolation)
}

// IsDanglingConnection checks if an error is a dangling connection.
func IsDanglingConnection(err error) bool {
	return errors.Is(err, ErrDanglingConnection)
}
