package models

// Node is a single typed processing unit of a graph.
type Node struct {
	ID          string                         `json:"id"                    validate:"required"`
	Name        string                         `json:"name"                  validate:"required"`
	Type        string                         `json:"type"                  validate:"required"`
	TypeVersion float64                        `json:"typeVersion"           validate:"gt=0"`
	Position    []float64                      `json:"position"              validate:"len=2"`
	Parameters  map[string]any                 `json:"parameters"`
	Credentials map[string]CredentialReference `json:"credentials,omitempty"`
}

// CredentialReference points to a credential record held by the engine.
type CredentialReference struct {
	ID   string `json:"id"   validate:"required"`
	Name string `json:"name"`
}

// HasCredential reports whether the node already references a credential of the given kind.
func (n *Node) HasCredential(kind string) bool {
	if n.Credentials == nil {
		return false
	}

	_, ok := n.Credentials[kind]

	return ok
}

// AttachCredential sets the credential reference for kind.
func (n *Node) AttachCredential(kind string, ref CredentialReference) {
	if n.Credentials == nil {
		n.Credentials = make(map[string]CredentialReference)
	}

	n.Credentials[kind] = ref
}
