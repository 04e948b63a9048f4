package injector

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Binding pairs a token with its replacement.
type Binding struct {
	Token string
	Value string
	// Number replaces a quoted token with a bare JSON number.
	Number bool
	// Inert values are caller supplied; their braces are written so no later
	// binding can read a token inside them.
	Inert bool
}

// Substituter applies bindings to a serialized template.
type Substituter interface {
	Substitute(document string, bindings []Binding) string
}

// TextSubstituter resolves bindings by literal find and replace over the
// serialized template. Values are escaped for use inside JSON strings.
type TextSubstituter struct{}

func (TextSubstituter) Substitute(document string, bindings []Binding) string {
	for _, binding := range bindings {
		if binding.Token == "" {
			continue
		}

		if binding.Number {
			document = strings.ReplaceAll(document, `"`+binding.Token+`"`, binding.Value)
			document = strings.ReplaceAll(document, binding.Token, binding.Value)

			continue
		}

		value := escapeJSON(binding.Value)
		if binding.Inert {
			value = neutralize(value)
		}

		document = strings.ReplaceAll(document, binding.Token, value)
	}

	return document
}

func escapeJSON(value string) string {
	var buf bytes.Buffer

	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(value); err != nil {
		return value
	}

	encoded := strings.TrimSuffix(buf.String(), "\n")

	return encoded[1 : len(encoded)-1]
}

// neutralize escapes opening braces so the JSON string still decodes to the
// same text but no longer reads as a placeholder.
func neutralize(escaped string) string {
	return strings.ReplaceAll(escaped, "{", `\u007b`)
}
