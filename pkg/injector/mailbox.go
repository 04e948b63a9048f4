package injector

import (
	"strings"

	"github.com/dukex/graphsmith/pkg/credentials"
	"github.com/dukex/graphsmith/pkg/models"
)

// Mailbox ports. Both connections use implicit TLS.
const (
	IMAPPort = 993
	SMTPPort = 465
)

// MailboxSettings are the user's mailbox details used to create the per-user
// IMAP credential and the derived SMTP credential.
type MailboxSettings struct {
	Email    string `json:"email"              validate:"omitempty,email"`
	Password string `json:"password"           validate:"required"`
	Host     string `json:"host"               validate:"required,hostname"`
	SMTPHost string `json:"smtpHost,omitempty" validate:"omitempty,hostname"`
}

// DeriveSMTPHost maps an inbound mail host to its outbound counterpart:
// imap.example.com becomes smtp.example.com, and any other host, with a
// leading "mail." removed, is prefixed with "smtp.".
func DeriveSMTPHost(imapHost string) string {
	host := strings.ToLower(strings.TrimSpace(imapHost))
	if host == "" {
		return ""
	}

	if rest, ok := strings.CutPrefix(host, "imap."); ok {
		return "smtp." + rest
	}

	return "smtp." + strings.TrimPrefix(host, "mail.")
}

func (m MailboxSettings) outboundHost() string {
	if m.SMTPHost != "" {
		return m.SMTPHost
	}

	return DeriveSMTPHost(m.Host)
}

// credentialRequest builds the engine payload for a per-user credential of kind.
func (m MailboxSettings) credentialRequest(kind, email string) credentials.CreateRequest {
	switch kind {
	case models.CredentialKindSMTP:
		return credentials.CreateRequest{
			Name: credentials.UserCredentialName(models.CredentialKindSMTP, email),
			Type: models.CredentialKindSMTP,
			Data: map[string]any{
				"user":     email,
				"password": m.Password,
				"host":     m.outboundHost(),
				"port":     SMTPPort,
				"secure":   true,
			},
		}
	default:
		return credentials.CreateRequest{
			Name: credentials.UserCredentialName(models.CredentialKindIMAP, email),
			Type: models.CredentialKindIMAP,
			Data: map[string]any{
				"user":     email,
				"password": m.Password,
				"host":     m.Host,
				"port":     IMAPPort,
				"secure":   true,
			},
		}
	}
}
