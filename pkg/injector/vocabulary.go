package injector

import (
	"regexp"
	"strings"

	"github.com/dukex/graphsmith/pkg/models"
)

// Placeholder tokens understood by the injector.
const (
	TokenUserEmail              = "{{USER_EMAIL}}"
	TokenUserMailboxPassword    = "{{USER_MAILBOX_PASSWORD}}"
	TokenUserMailboxHost        = "{{USER_MAILBOX_HOST}}"
	TokenUserInterval           = "{{USER_INTERVAL}}"
	TokenUserIMAPCredentialID   = "{{USER_IMAP_CREDENTIAL_ID}}"
	TokenUserIMAPCredentialName = "{{USER_IMAP_CREDENTIAL_NAME}}"
	TokenUserSMTPCredentialID   = "{{USER_SMTP_CREDENTIAL_ID}}"
	TokenUserSMTPCredentialName = "{{USER_SMTP_CREDENTIAL_NAME}}"
)

const (
	operatorAPIKey         = "OPERATOR_API_KEY"
	operatorCredentialID   = "OPERATOR_CREDENTIAL_ID"
	operatorCredentialName = "OPERATOR_CREDENTIAL_NAME"
)

var fixedTokens = map[string]bool{
	TokenUserEmail:              true,
	TokenUserMailboxPassword:    true,
	TokenUserMailboxHost:        true,
	TokenUserInterval:           true,
	TokenUserIMAPCredentialID:   true,
	TokenUserIMAPCredentialName: true,
	TokenUserSMTPCredentialID:   true,
	TokenUserSMTPCredentialName: true,
}

// userCredentialTokens holds the id/name token pair of each per-user credential kind.
var userCredentialTokens = map[string][2]string{
	models.CredentialKindIMAP: {TokenUserIMAPCredentialID, TokenUserIMAPCredentialName},
	models.CredentialKindSMTP: {TokenUserSMTPCredentialID, TokenUserSMTPCredentialName},
}

var vocabularyPattern = regexp.MustCompile(`\{\{([A-Z][A-Z0-9_]*)(?::([A-Za-z0-9_.\-]+))?\}\}`)

// OperatorAPIKeyToken is the token replaced by the active operator key of service.
func OperatorAPIKeyToken(service string) string {
	return "{{" + operatorAPIKey + ":" + service + "}}"
}

// OperatorCredentialIDToken is the token replaced by the id of the shared credential of service.
func OperatorCredentialIDToken(service string) string {
	return "{{" + operatorCredentialID + ":" + service + "}}"
}

// OperatorCredentialNameToken is the token replaced by the name of the shared credential of service.
func OperatorCredentialNameToken(service string) string {
	return "{{" + operatorCredentialName + ":" + service + "}}"
}

// UserToken is the token replaced by the user parameter name.
func UserToken(name string) string {
	return "{{" + name + "}}"
}

// Token is a vocabulary placeholder found in a template.
type Token struct {
	Literal string
	Name    string
	Service string
}

// IsOperatorAPIKey reports whether the token names an operator service key.
func (t Token) IsOperatorAPIKey() bool {
	return t.Name == operatorAPIKey
}

// IsOperatorCredential reports whether the token names a shared operator credential.
func (t Token) IsOperatorCredential() bool {
	return t.Name == operatorCredentialID || t.Name == operatorCredentialName
}

// Tokens returns the distinct vocabulary tokens of text in order of first appearance.
// Tokens outside the vocabulary are ignored.
func Tokens(text string) []Token {
	var (
		tokens []Token
		seen   = map[string]bool{}
	)

	for _, match := range vocabularyPattern.FindAllStringSubmatch(text, -1) {
		literal := match[0]
		if seen[literal] {
			continue
		}

		token := Token{Literal: literal, Name: match[1], Service: match[2]}
		if !inVocabulary(token) {
			continue
		}

		seen[literal] = true
		tokens = append(tokens, token)
	}

	return tokens
}

func inVocabulary(token Token) bool {
	if token.Service != "" {
		return token.Name == operatorAPIKey || token.Name == operatorCredentialID || token.Name == operatorCredentialName
	}

	return fixedTokens[token.Literal]
}

// servicesOf returns the distinct services named by tokens matching keep.
func servicesOf(tokens []Token, keep func(Token) bool) []string {
	var (
		services []string
		seen     = map[string]bool{}
	)

	for _, token := range tokens {
		if !keep(token) || seen[token.Service] {
			continue
		}

		seen[token.Service] = true
		services = append(services, token.Service)
	}

	return services
}

func containsToken(tokens []Token, literal string) bool {
	for _, token := range tokens {
		if token.Literal == literal {
			return true
		}
	}

	return false
}

func isPlaceholder(value string) bool {
	return strings.Contains(value, "{{")
}
