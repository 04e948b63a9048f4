// Package injector turns a workflow template into a deployable instance by
// resolving its placeholders and attaching credential references.
package injector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/dukex/graphsmith/pkg/credentials"
	"github.com/dukex/graphsmith/pkg/models"
	"github.com/dukex/graphsmith/pkg/validator"
	playground "github.com/go-playground/validator/v10"
)

// KeySource serves operator-held service keys.
type KeySource interface {
	ActiveKey(service string) (string, bool)
}

// Request describes one instantiation of a template for a user.
type Request struct {
	TemplateID string `json:"templateId,omitempty"`
	// DeploymentKey identifies the deployment across retries. When set and a
	// ledger is configured, per-user credentials are created at most once per key.
	DeploymentKey string            `json:"deploymentKey,omitempty"`
	UserID        string            `json:"userId,omitempty"`
	UserEmail     string            `json:"userEmail,omitempty"  validate:"omitempty,email"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	Interval      *int              `json:"interval,omitempty"   validate:"omitempty,gt=0"`
	Mailbox       *MailboxSettings  `json:"mailbox,omitempty"`
}

func (r Request) email() string {
	if r.UserEmail != "" {
		return r.UserEmail
	}

	if r.Mailbox != nil {
		return r.Mailbox.Email
	}

	return ""
}

// MaterializedCredential is a per-user credential referenced by the instance.
type MaterializedCredential struct {
	Kind      string                     `json:"kind"`
	Reference models.CredentialReference `json:"reference"`
	// Reused is true when the credential came from the ledger instead of being created.
	Reused bool `json:"reused"`
}

// Result is a deployable instance.
type Result struct {
	Graph       *models.Graph            `json:"graph"`
	Credentials []MaterializedCredential `json:"credentials,omitempty"`
	Warnings    []string                 `json:"warnings,omitempty"`
	Diagnostics []validator.Diagnostic   `json:"diagnostics,omitempty"`
}

// Option configures an Injector.
type Option func(*Injector)

func WithSubstituter(substituter Substituter) Option {
	return func(i *Injector) {
		i.substituter = substituter
	}
}

func WithKeySource(keys KeySource) Option {
	return func(i *Injector) {
		i.keys = keys
	}
}

func WithCredentialStore(store credentials.Store) Option {
	return func(i *Injector) {
		i.store = store
	}
}

func WithLedger(ledger credentials.Ledger) Option {
	return func(i *Injector) {
		i.ledger = ledger
	}
}

func WithEmailPolicy(policy EmailPolicy) Option {
	return func(i *Injector) {
		i.emailPolicy = policy
	}
}

// WithOptionalKinds sets the per-user credential kinds whose creation may fail
// without failing the instance.
func WithOptionalKinds(kinds ...string) Option {
	return func(i *Injector) {
		i.optionalKinds = make(map[string]bool, len(kinds))
		for _, kind := range kinds {
			i.optionalKinds[kind] = true
		}
	}
}

// WithOptionalTokens sets which vocabulary tokens may stay unresolved.
func WithOptionalTokens(optional func(Token) bool) Option {
	return func(i *Injector) {
		i.optionalToken = optional
	}
}

// Injector instantiates templates. It is safe for concurrent use; every call
// works on its own copy of the template.
type Injector struct {
	logger        *slog.Logger
	catalog       *models.Catalog
	validator     *validator.Validator
	substituter   Substituter
	keys          KeySource
	store         credentials.Store
	ledger        credentials.Ledger
	emailPolicy   EmailPolicy
	optionalKinds map[string]bool
	optionalToken func(Token) bool
	requests      *playground.Validate
}

func New(logger *slog.Logger, catalog *models.Catalog, graphValidator *validator.Validator, opts ...Option) *Injector {
	if catalog == nil {
		catalog = models.DefaultCatalog()
	}

	injector := &Injector{
		logger:        logger.With("module", "injector"),
		catalog:       catalog,
		validator:     graphValidator,
		substituter:   TextSubstituter{},
		emailPolicy:   EmailPolicySingle,
		optionalKinds: map[string]bool{models.CredentialKindSMTP: true},
		optionalToken: Token.IsOperatorAPIKey,
		requests:      playground.New(playground.WithRequiredStructEnabled()),
	}

	for _, opt := range opts {
		opt(injector)
	}

	return injector
}

// state carries one instantiation through the resolution steps.
type state struct {
	document     string
	result       *Result
	userRefs     map[string]models.CredentialReference
	operatorRefs map[string]models.CredentialReference
	dropped      map[string]bool
}

// Inject resolves the placeholders of template for req and returns the
// validated instance. Per-user credentials created before a later failure are
// not rolled back.
func (i *Injector) Inject(ctx context.Context, template []byte, req Request) (*Result, error) {
	if err := i.requests.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if len(bytes.TrimSpace(template)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidTemplate)
	}

	s := &state{
		document:     string(template),
		result:       &Result{},
		userRefs:     map[string]models.CredentialReference{},
		operatorRefs: map[string]models.CredentialReference{},
		dropped:      map[string]bool{},
	}

	// Addresses are collected before any caller value enters the document.
	i.unifyEmails(s, req.email())
	i.substituteParameters(s, req.Parameters)
	i.substituteOperatorKeys(s)
	i.substituteInterval(s, req.Interval)

	// Bare catalog nodes only receive credentials when the template declares at
	// least one placeholder; templates without any are returned as authored.
	attach := isPlaceholder(string(template))

	pending := needs{kinds: map[string]bool{}}
	if attach {
		pending = pendingNeeds(s.document, i.catalog)
	}

	if err := i.materializeCredentials(ctx, s, req, pending); err != nil {
		return nil, err
	}

	if err := i.resolveOperatorCredentials(ctx, s, pending); err != nil {
		return nil, err
	}

	if err := i.checkUnresolved(s); err != nil {
		return nil, err
	}

	var candidate map[string]any
	if err := json.Unmarshal([]byte(s.document), &candidate); err != nil {
		return nil, &validator.SchemaError{Message: "instance is not a valid JSON document: " + err.Error()}
	}

	if candidate == nil {
		return nil, &validator.SchemaError{Message: "instance is null"}
	}

	graph, diags, err := i.validator.Repair(candidate)
	if err != nil {
		return nil, err
	}

	if attach {
		i.attachCredentials(s, graph)
	}

	dropCredentials(s.dropped, graph)

	s.result.Graph = graph
	s.result.Diagnostics = diags

	return s.result, nil
}

func (i *Injector) substituteParameters(s *state, parameters map[string]string) {
	if len(parameters) == 0 {
		return
	}

	names := make([]string, 0, len(parameters))
	for name := range parameters {
		names = append(names, name)
	}

	slices.Sort(names)

	bindings := make([]Binding, 0, len(names))

	for _, name := range names {
		token := UserToken(name)
		if len(Tokens(token)) > 0 {
			s.result.Warnings = append(s.result.Warnings, fmt.Sprintf("parameter %q shadows a reserved placeholder and was ignored", name))

			continue
		}

		bindings = append(bindings, Binding{Token: token, Value: parameters[name], Inert: true})
	}

	s.document = i.substituter.Substitute(s.document, bindings)
}

func (i *Injector) substituteOperatorKeys(s *state) {
	if i.keys == nil {
		return
	}

	var bindings []Binding

	for _, service := range servicesOf(Tokens(s.document), Token.IsOperatorAPIKey) {
		key, ok := i.keys.ActiveKey(service)
		if !ok {
			i.logger.Debug("No active operator key", "service", service)

			continue
		}

		bindings = append(bindings, Binding{Token: OperatorAPIKeyToken(service), Value: key})
	}

	s.document = i.substituter.Substitute(s.document, bindings)
}

func (i *Injector) unifyEmails(s *state, email string) {
	if email == "" {
		return
	}

	bindings := emailBindings(i.emailPolicy, s.document, email)
	if len(bindings) > 0 {
		i.logger.Debug("Unifying template email addresses", "count", len(bindings))
	}

	bindings = append(bindings, Binding{Token: TokenUserEmail, Value: email, Inert: true})
	s.document = i.substituter.Substitute(s.document, bindings)
}

func (i *Injector) substituteInterval(s *state, interval *int) {
	if interval == nil {
		return
	}

	s.document = i.substituter.Substitute(s.document, []Binding{
		{Token: TokenUserInterval, Value: strconv.Itoa(*interval), Number: true},
	})
}

// materializeCredentials creates, or reuses through the ledger, the per-user
// mailbox credentials the instance needs.
func (i *Injector) materializeCredentials(ctx context.Context, s *state, req Request, pending needs) error {
	kinds := pending.userKinds(s.document)
	if len(kinds) == 0 {
		return nil
	}

	if req.Mailbox == nil {
		s.result.Warnings = append(s.result.Warnings, "template needs mailbox credentials but no mailbox settings were supplied")

		return nil
	}

	if req.email() == "" {
		return fmt.Errorf("%w: mailbox credentials need an email address", ErrInvalidRequest)
	}

	bindings := []Binding{
		{Token: TokenUserMailboxPassword, Value: req.Mailbox.Password, Inert: true},
		{Token: TokenUserMailboxHost, Value: req.Mailbox.Host, Inert: true},
	}

	for _, kind := range kinds {
		ref, reused, err := i.materialize(ctx, kind, req)
		if err != nil {
			var creationErr *credentials.CreationError
			if errors.As(err, &creationErr) && creationErr.Optional {
				i.logger.WarnContext(ctx, "Optional credential could not be created", "kind", kind, "error", err)
				s.result.Warnings = append(s.result.Warnings, fmt.Sprintf("%s credential was not created: %v", kind, err))
				s.dropped[kind] = true

				continue
			}

			return err
		}

		s.userRefs[kind] = ref
		s.result.Credentials = append(s.result.Credentials, MaterializedCredential{Kind: kind, Reference: ref, Reused: reused})

		pair := userCredentialTokens[kind]
		bindings = append(bindings, Binding{Token: pair[0], Value: ref.ID}, Binding{Token: pair[1], Value: ref.Name})
	}

	s.document = i.substituter.Substitute(s.document, bindings)

	return nil
}

func (i *Injector) materialize(ctx context.Context, kind string, req Request) (models.CredentialReference, bool, error) {
	optional := i.optionalKinds[kind]

	var ledgerKey string
	if req.DeploymentKey != "" && i.ledger != nil {
		ledgerKey = credentials.LedgerKey(req.DeploymentKey, kind)

		ref, found, err := i.ledger.Lookup(ctx, ledgerKey)
		if err != nil {
			i.logger.WarnContext(ctx, "Credential ledger lookup failed", "key", ledgerKey, "error", err)
		} else if found {
			i.logger.DebugContext(ctx, "Reusing credential from ledger", "key", ledgerKey, "id", ref.ID)

			return ref, true, nil
		}
	}

	if i.store == nil {
		return models.CredentialReference{}, false, &credentials.CreationError{
			Kind:     kind,
			Optional: optional,
			Err:      errors.New("no credential store configured"),
		}
	}

	email := req.email()

	created, err := i.store.Create(ctx, req.Mailbox.credentialRequest(kind, email))
	if err != nil {
		creationErr := &credentials.CreationError{Kind: kind, Optional: optional, Err: err}

		var cause *credentials.CreationError
		if errors.As(err, &cause) {
			creationErr.StatusCode = cause.StatusCode
			creationErr.Err = cause.Err
		}

		return models.CredentialReference{}, false, creationErr
	}

	ref := models.CredentialReference{ID: created.ID, Name: created.Name}

	if ledgerKey != "" {
		if err := i.ledger.Record(ctx, ledgerKey, ref); err != nil {
			i.logger.WarnContext(ctx, "Failed to record credential in ledger", "key", ledgerKey, "error", err)
		}
	}

	return ref, false, nil
}

// resolveOperatorCredentials substitutes shared credential tokens and remembers
// the matches for node-level attachment.
func (i *Injector) resolveOperatorCredentials(ctx context.Context, s *state, pending needs) error {
	tokenServices := servicesOf(Tokens(s.document), Token.IsOperatorCredential)
	services := slices.Clone(tokenServices)

	for _, service := range pending.services {
		if !slices.Contains(services, service) {
			services = append(services, service)
		}
	}

	if len(services) == 0 || i.store == nil {
		return nil
	}

	list, err := i.store.List(ctx)
	if err != nil {
		if len(tokenServices) > 0 {
			return fmt.Errorf("failed to list operator credentials: %w", err)
		}

		s.result.Warnings = append(s.result.Warnings, fmt.Sprintf("operator credentials were not attached: %v", err))

		return nil
	}

	var bindings []Binding

	for _, service := range services {
		match, ok := credentials.MatchOperatorCredential(list, service)
		if !ok {
			i.logger.DebugContext(ctx, "No operator credential matches service", "service", service)

			continue
		}

		s.operatorRefs[service] = models.CredentialReference{ID: match.ID, Name: match.Name}
		bindings = append(bindings,
			Binding{Token: OperatorCredentialIDToken(service), Value: match.ID},
			Binding{Token: OperatorCredentialNameToken(service), Value: match.Name},
		)
	}

	s.document = i.substituter.Substitute(s.document, bindings)

	return nil
}

func (i *Injector) checkUnresolved(s *state) error {
	for _, token := range Tokens(s.document) {
		if i.optionalToken != nil && i.optionalToken(token) {
			continue
		}

		if s.droppedToken(token) {
			continue
		}

		return &UnresolvedPlaceholderError{Token: token.Literal}
	}

	return nil
}

func (s *state) droppedToken(token Token) bool {
	for kind := range s.dropped {
		pair := userCredentialTokens[kind]
		if token.Literal == pair[0] || token.Literal == pair[1] {
			return true
		}
	}

	return false
}

// attachCredentials gives catalog nodes that need a credential and carry none
// the per-user or operator reference resolved for their kind.
func (i *Injector) attachCredentials(s *state, graph *models.Graph) {
	for _, node := range graph.Nodes {
		nodeType, ok := i.catalog.Lookup(node.Type)
		if !ok || nodeType.CredentialKind == "" || node.HasCredential(nodeType.CredentialKind) {
			continue
		}

		if ref, ok := s.userRefs[nodeType.CredentialKind]; ok {
			node.AttachCredential(nodeType.CredentialKind, ref)

			continue
		}

		if ref, ok := s.operatorRefs[nodeType.Service]; ok && nodeType.Service != "" {
			node.AttachCredential(nodeType.CredentialKind, ref)
		}
	}
}

// dropCredentials removes placeholder references to credentials that could not be created.
func dropCredentials(dropped map[string]bool, graph *models.Graph) {
	if len(dropped) == 0 {
		return
	}

	for _, node := range graph.Nodes {
		for kind := range dropped {
			ref, ok := node.Credentials[kind]
			if !ok || !isPlaceholder(ref.ID) {
				continue
			}

			delete(node.Credentials, kind)
		}

		if len(node.Credentials) == 0 {
			node.Credentials = nil
		}
	}
}

// needs are the credentials required by nodes that do not reference one yet.
type needs struct {
	kinds    map[string]bool
	services []string
}

func pendingNeeds(document string, catalog *models.Catalog) needs {
	out := needs{kinds: map[string]bool{}}

	var partial struct {
		Nodes []struct {
			Type        string         `json:"type"`
			Credentials map[string]any `json:"credentials"`
		} `json:"nodes"`
	}

	// Templates that do not parse yet are reported later by validation.
	if err := json.Unmarshal([]byte(document), &partial); err != nil {
		return out
	}

	for _, node := range partial.Nodes {
		nodeType, ok := catalog.Lookup(node.Type)
		if !ok || nodeType.CredentialKind == "" {
			continue
		}

		if _, has := node.Credentials[nodeType.CredentialKind]; has {
			continue
		}

		if _, mailbox := userCredentialTokens[nodeType.CredentialKind]; mailbox {
			out.kinds[nodeType.CredentialKind] = true
		} else if nodeType.Service != "" && !slices.Contains(out.services, nodeType.Service) {
			out.services = append(out.services, nodeType.Service)
		}
	}

	return out
}

// userKinds lists, IMAP first, the per-user credential kinds referenced by
// tokens in document or needed by bare nodes.
func (n needs) userKinds(document string) []string {
	tokens := Tokens(document)

	var kinds []string

	for _, kind := range []string{models.CredentialKindIMAP, models.CredentialKindSMTP} {
		pair := userCredentialTokens[kind]
		if n.kinds[kind] || containsToken(tokens, pair[0]) || containsToken(tokens, pair[1]) {
			kinds = append(kinds, kind)
		}
	}

	return kinds
}
