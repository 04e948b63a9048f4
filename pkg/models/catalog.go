package models

import (
	"slices"
	"strings"
)

// NodeKind groups node types by the role they play in a graph.
type NodeKind string

const (
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindMessaging NodeKind = "messaging"
	NodeKindDatastore NodeKind = "datastore"
	NodeKindAI        NodeKind = "ai"
	NodeKindCore      NodeKind = "core"
)

// Well-known node types.
const (
	NodeTypeScheduleTrigger = "n8n-nodes-base.scheduleTrigger"
	NodeTypeCronTrigger     = "n8n-nodes-base.cron"
	NodeTypeManualTrigger   = "n8n-nodes-base.manualTrigger"
	NodeTypeWebhook         = "n8n-nodes-base.webhook"
	NodeTypeEmailReadIMAP   = "n8n-nodes-base.emailReadImap"
	NodeTypeEmailSend       = "n8n-nodes-base.emailSend"
	NodeTypeAgent           = "@n8n/n8n-nodes-langchain.agent"
	NodeTypeOpenAIChatModel = "@n8n/n8n-nodes-langchain.lmChatOpenAi"
)

// Credential kinds attached to nodes.
const (
	CredentialKindIMAP   = "imap"
	CredentialKindSMTP   = "smtp"
	CredentialKindOpenAI = "openAiApi"
)

// NodeType describes a node type the catalog knows about.
type NodeType struct {
	Type           string
	Kind           NodeKind
	CredentialKind string
	// Service names the operator service whose shared credential serves this node.
	Service string
	// ParameterSchema is an optional JSON schema for the node parameters.
	ParameterSchema map[string]any
	Schedule        bool
}

// Catalog is the advisory set of recognized node types.
type Catalog struct {
	types    map[string]NodeType
	prefixes []string
}

// NewCatalog builds a catalog from explicit types and accepted type prefixes.
func NewCatalog(types []NodeType, prefixes []string) *Catalog {
	catalog := &Catalog{
		types:    make(map[string]NodeType, len(types)),
		prefixes: slices.Clone(prefixes),
	}

	for _, t := range types {
		catalog.types[t.Type] = t
	}

	return catalog
}

// Lookup returns the catalog entry for an exact type.
func (c *Catalog) Lookup(nodeType string) (NodeType, bool) {
	t, ok := c.types[nodeType]

	return t, ok
}

// IsKnown checks exact entries first, then the known prefixes.
func (c *Catalog) IsKnown(nodeType string) bool {
	if _, ok := c.types[nodeType]; ok {
		return true
	}

	for _, prefix := range c.prefixes {
		if strings.HasPrefix(nodeType, prefix) {
			return true
		}
	}

	return false
}

// IsScheduleTrigger reports whether nodes of this type carry a schedule rule.
func (c *Catalog) IsScheduleTrigger(nodeType string) bool {
	if t, ok := c.types[nodeType]; ok {
		return t.Schedule
	}

	lower := strings.ToLower(nodeType)

	return strings.HasSuffix(lower, "scheduletrigger") ||
		strings.HasSuffix(lower, ".cron") ||
		lower == "trigger.schedule"
}

// Types returns every explicit catalog entry ordered by type.
func (c *Catalog) Types() []NodeType {
	out := make([]NodeType, 0, len(c.types))
	for _, t := range c.types {
		out = append(out, t)
	}

	slices.SortFunc(out, func(a, b NodeType) int { return strings.Compare(a.Type, b.Type) })

	return out
}

// CredentialTypes returns the catalog entries that need a credential.
func (c *Catalog) CredentialTypes() []NodeType {
	out := make([]NodeType, 0)

	for _, t := range c.Types() {
		if t.CredentialKind != "" {
			out = append(out, t)
		}
	}

	return out
}

// DefaultCatalog returns the catalog of node types the console ships templates for.
func DefaultCatalog() *Catalog {
	return NewCatalog([]NodeType{
		{Type: NodeTypeScheduleTrigger, Kind: NodeKindTrigger, Schedule: true, ParameterSchema: scheduleParameterSchema},
		{Type: NodeTypeCronTrigger, Kind: NodeKindTrigger, Schedule: true},
		{Type: NodeTypeManualTrigger, Kind: NodeKindTrigger},
		{Type: NodeTypeWebhook, Kind: NodeKindTrigger},
		{Type: "trigger.schedule", Kind: NodeKindTrigger, Schedule: true},
		{Type: "trigger.manual", Kind: NodeKindTrigger},
		{Type: NodeTypeEmailReadIMAP, Kind: NodeKindTrigger, CredentialKind: CredentialKindIMAP},
		{Type: NodeTypeEmailSend, Kind: NodeKindMessaging, CredentialKind: CredentialKindSMTP},
		{Type: "n8n-nodes-base.slack", Kind: NodeKindMessaging},
		{Type: "n8n-nodes-base.telegram", Kind: NodeKindMessaging},
		{Type: "n8n-nodes-base.googleSheets", Kind: NodeKindDatastore},
		{Type: "n8n-nodes-base.postgres", Kind: NodeKindDatastore},
		{Type: "n8n-nodes-base.airtable", Kind: NodeKindDatastore},
		{Type: NodeTypeAgent, Kind: NodeKindAI},
		{
			Type:           NodeTypeOpenAIChatModel,
			Kind:           NodeKindAI,
			CredentialKind: CredentialKindOpenAI,
			Service:        "openai",
		},
		{Type: "@n8n/n8n-nodes-langchain.memoryBufferWindow", Kind: NodeKindAI},
		{Type: "@n8n/n8n-nodes-langchain.toolHttpRequest", Kind: NodeKindAI},
		{Type: "n8n-nodes-base.httpRequest", Kind: NodeKindCore},
		{Type: "n8n-nodes-base.code", Kind: NodeKindCore},
		{Type: "n8n-nodes-base.if", Kind: NodeKindCore},
		{Type: "n8n-nodes-base.set", Kind: NodeKindCore},
	}, []string{"n8n-nodes-base.", "@n8n/n8n-nodes-langchain."})
}

var scheduleParameterSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"rule": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"interval": map[string]any{"type": "array"},
			},
		},
	},
}
