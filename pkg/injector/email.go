package injector

import (
	"fmt"
	"regexp"
	"strings"
)

// EmailPolicy controls how hard-coded addresses in a template are replaced by
// the user's address.
type EmailPolicy string

const (
	// EmailPolicySingle replaces the address only when the template holds exactly one distinct address.
	EmailPolicySingle EmailPolicy = "single"
	// EmailPolicyAll replaces every distinct address.
	EmailPolicyAll EmailPolicy = "all"
	// EmailPolicyOff leaves addresses untouched.
	EmailPolicyOff EmailPolicy = "off"
)

func ParseEmailPolicy(value string) (EmailPolicy, error) {
	switch policy := EmailPolicy(strings.ToLower(strings.TrimSpace(value))); policy {
	case EmailPolicySingle, EmailPolicyAll, EmailPolicyOff:
		return policy, nil
	case "":
		return EmailPolicySingle, nil
	default:
		return "", fmt.Errorf("unknown email policy %q", value)
	}
}

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// distinctEmails groups the addresses of document other than except by their
// lowercase form, in order of first appearance. Each group lists every spelling seen.
func distinctEmails(document, except string) [][]string {
	var (
		groups  [][]string
		index   = map[string]int{}
		spelled = map[string]bool{}
		skip    = strings.ToLower(except)
	)

	for _, loc := range emailPattern.FindAllStringIndex(document, -1) {
		email := document[loc[0]+escapeTail(document, loc[0]):loc[1]]
		if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") {
			continue
		}

		key := strings.ToLower(email)
		if key == skip || spelled[email] {
			continue
		}

		spelled[email] = true

		if i, ok := index[key]; ok {
			groups[i] = append(groups[i], email)

			continue
		}

		index[key] = len(groups)
		groups = append(groups, []string{email})
	}

	return groups
}

// escapeTail returns how many bytes at start belong to a JSON escape sequence
// opened by the backslash just before it, such as the u003c of \u003c.
func escapeTail(document string, start int) int {
	backslashes := 0
	for i := start - 1; i >= 0 && document[i] == '\\'; i-- {
		backslashes++
	}

	if backslashes%2 == 0 || start >= len(document) {
		return 0
	}

	if document[start] != 'u' {
		return 1
	}

	tail := 1
	for tail < 5 && start+tail < len(document) && isHex(document[start+tail]) {
		tail++
	}

	return tail
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// emailBindings returns the replacements of hard-coded addresses by userEmail.
func emailBindings(policy EmailPolicy, document, userEmail string) []Binding {
	if userEmail == "" || policy == EmailPolicyOff {
		return nil
	}

	groups := distinctEmails(document, userEmail)

	if policy == EmailPolicySingle && len(groups) != 1 {
		return nil
	}

	var bindings []Binding

	for _, spellings := range groups {
		for _, email := range spellings {
			bindings = append(bindings, Binding{Token: email, Value: userEmail})
		}
	}

	return bindings
}
