// Package credentials talks to the execution engine's credential store and keeps
// track of credentials created per deployment.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dukex/graphsmith/pkg/models"
)

// CreateRequest is the payload sent to the engine to create a credential.
type CreateRequest struct {
	Name string         `json:"name" validate:"required"`
	Type string         `json:"type" validate:"required"`
	Data map[string]any `json:"data" validate:"required"`
}

// Created is the engine's answer to a successful creation.
type Created struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Summary is a credential as listed by the engine.
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Store is the credential collaborator of the injector.
type Store interface {
	Create(ctx context.Context, req CreateRequest) (Created, error)
	List(ctx context.Context) ([]Summary, error)
}

var ErrCredentialCreation = errors.New("credential creation failed")

// CreationError reports a failure to materialize a credential.
type CreationError struct {
	Kind       string
	Optional   bool
	StatusCode int // zero when the request never got an answer
	Err        error
}

func (e *CreationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: %s credential (status %d): %v", ErrCredentialCreation, e.Kind, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("%v: %s credential: %v", ErrCredentialCreation, e.Kind, e.Err)
}

func (e *CreationError) Unwrap() []error {
	return []error{ErrCredentialCreation, e.Err}
}

// Retryable reports whether repeating the request may succeed: transport
// failures, throttling and server errors are, rejected payloads are not.
func (e *CreationError) Retryable() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// IsRetryable checks if err is a retryable credential creation failure.
func IsRetryable(err error) bool {
	var creationErr *CreationError
	if errors.As(err, &creationErr) {
		return creationErr.Retryable()
	}

	return false
}

// ServiceKeywords maps an operator service to the name fragments that identify
// its credential in the engine's catalog.
var ServiceKeywords = map[string][]string{
	"openai":    {"openai", "gpt"},
	"anthropic": {"anthropic", "claude"},
	"google":    {"google", "gemini"},
	"slack":     {"slack"},
	"telegram":  {"telegram"},
	"airtable":  {"airtable"},
}

// UserCredentialName names the per-user mailbox credential of kind created for email.
func UserCredentialName(kind, email string) string {
	return strings.ToUpper(kind) + " " + email
}

// isUserCredential reports whether c is a per-user mailbox credential, which
// is never shared between users.
func isUserCredential(c Summary) bool {
	switch strings.ToLower(c.Type) {
	case models.CredentialKindIMAP, models.CredentialKindSMTP:
		return true
	}

	for _, kind := range []string{models.CredentialKindIMAP, models.CredentialKindSMTP} {
		if strings.HasPrefix(strings.ToUpper(c.Name), UserCredentialName(kind, "")) {
			return true
		}
	}

	return false
}

// MatchOperatorCredential finds the shared credential serving service by a
// case-insensitive substring match of the service keywords against credential
// names and types. Per-user mailbox credentials are skipped. The first match
// in list order wins.
func MatchOperatorCredential(list []Summary, service string) (Summary, bool) {
	service = strings.ToLower(strings.TrimSpace(service))
	if service == "" {
		return Summary{}, false
	}

	keywords, ok := ServiceKeywords[service]
	if !ok {
		keywords = []string{service}
	}

	for _, credential := range list {
		if isUserCredential(credential) {
			continue
		}

		haystack := strings.ToLower(credential.Name + " " + credential.Type)

		for _, keyword := range keywords {
			if strings.Contains(haystack, keyword) {
				return credential, true
			}
		}
	}

	return Summary{}, false
}
