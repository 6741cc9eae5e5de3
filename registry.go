package bridge

import (
	"context"
	"net/url"
	"strings"
)

// VerifierFactory binds a verify callback to a strategy spec.
type VerifierFactory func(spec StrategySpec) VerifyFunc

// RegisteredStrategy is a live strategy together with its resolved spec.
type RegisteredStrategy struct {
	Spec     StrategySpec
	Strategy Strategy
}

// Registry holds the live strategies. It is immutable once built.
type Registry struct {
	baseURL   string
	prefix    string
	factories map[string]StrategyFactory
	verifier  VerifierFactory
	logger    Logger

	ordered []*RegisteredStrategy
	byName  map[string]*RegisteredStrategy
}

type RegistryOption func(*Registry)

// WithBaseURL sets the absolute site URL, e.g. https://example.com.
func WithBaseURL(baseURL string) RegistryOption {
	return func(r *Registry) {
		r.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

// WithPrefix sets the site path prefix, e.g. /cms.
func WithPrefix(prefix string) RegistryOption {
	return func(r *Registry) {
		r.prefix = normalizePrefix(prefix)
	}
}

// WithFactories registers constructors by module key.
func WithFactories(factories map[string]StrategyFactory) RegistryOption {
	return func(r *Registry) {
		for k, v := range factories {
			r.factories[k] = v
		}
	}
}

// WithVerifier sets the verify callback bound to every strategy.
func WithVerifier(verifier VerifierFactory) RegistryOption {
	return func(r *Registry) {
		r.verifier = verifier
	}
}

// WithRegistryLogger sets the logger used by the registry.
func WithRegistryLogger(logger Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = ensureLogger(logger)
	}
}

// NewRegistry validates the specs, fixes every strategy's URLs and builds
// one live instance per spec.
func NewRegistry(specs []StrategySpec, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		factories: map[string]StrategyFactory{},
		logger:    defLogger{},
		byName:    map[string]*RegisteredStrategy{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	if r.baseURL == "" {
		return nil, configError("a base URL is required to build absolute callback URLs")
	}
	if _, err := url.ParseRequestURI(r.baseURL); err != nil {
		return nil, configError("invalid base URL %q: %v", r.baseURL, err)
	}
	if len(specs) == 0 {
		return nil, configError("at least one strategy must be configured")
	}
	if r.verifier == nil {
		r.verifier = func(StrategySpec) VerifyFunc {
			return func(context.Context, *Tokens, *Profile) (*User, error) {
				return nil, reject(ReasonNoMatch)
			}
		}
	}

	for i, spec := range specs {
		if err := r.register(i, spec); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) register(index int, spec StrategySpec) error {
	factory := spec.Factory
	if factory == nil && spec.Module != "" {
		factory = r.factories[spec.Module]
		if factory == nil {
			return configError("strategy %d: unknown module %q", index, spec.Module)
		}
	}
	if factory == nil {
		return configError("strategy %d: a module or a factory is required", index)
	}

	if err := validateMatch(spec); err != nil {
		return err
	}

	options := spec.Options.clone()

	if spec.Name == "" {
		name, err := r.probeName(factory, spec, options)
		if err != nil {
			return err
		}
		r.logger.Warn("strategy %d has no name, using %q from a probe instance. Set the name explicitly", index, name)
		spec.Name = name
	}
	if !validName(spec.Name) {
		return configError("strategy %d: invalid name %q", index, spec.Name)
	}
	if _, exists := r.byName[spec.Name]; exists {
		return configError("strategy %d: duplicate name %q", index, spec.Name)
	}

	if spec.Label == "" {
		spec.Label = spec.Name
	}

	if spec.CallbackURL == "" {
		if explicit, ok := options[OptionCallbackURL].(string); ok {
			spec.CallbackURL = explicit
		}
	}
	if spec.CallbackURL != "" {
		parsed, err := url.Parse(spec.CallbackURL)
		if err != nil || !parsed.IsAbs() {
			return configError("strategy %q: callback URL %q must be absolute", spec.Name, spec.CallbackURL)
		}
	}

	options[OptionCallbackURL] = r.callbackURL(spec, true)
	spec.Options = options

	strategy, err := factory(options, r.verifier(spec))
	if err != nil {
		return configError("strategy %q: %v", spec.Name, err)
	}
	if strategy == nil {
		return configError("strategy %q: factory returned no strategy", spec.Name)
	}

	entry := &RegisteredStrategy{Spec: spec, Strategy: strategy}
	r.ordered = append(r.ordered, entry)
	r.byName[spec.Name] = entry
	return nil
}

func (r *Registry) probeName(factory StrategyFactory, spec StrategySpec, options Options) (string, error) {
	probeOptions := options.clone()
	probeOptions[OptionCallbackURL] = ProbeCallbackURL

	probe, err := factory(probeOptions, r.verifier(spec))
	if err != nil {
		return "", configError("unable to build probe strategy: %v", err)
	}
	if probe == nil || probe.Name() == "" {
		return "", configError("probe strategy has no name, set one explicitly")
	}
	return probe.Name(), nil
}

func validateMatch(spec StrategySpec) error {
	if spec.MatchFunc != nil {
		return nil
	}
	switch spec.Match {
	case "", MatchID, MatchUsername, MatchEmail, MatchEmails:
		return nil
	}
	return ErrUnsupportedMatch.Clone().WithMetadata(map[string]any{
		"match":    string(spec.Match),
		"strategy": spec.Name,
	})
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}

// BaseURL returns the configured site URL.
func (r *Registry) BaseURL() string { return r.baseURL }

// Prefix returns the configured path prefix.
func (r *Registry) Prefix() string { return r.prefix }

// Strategies returns the registered strategies in registration order.
func (r *Registry) Strategies() []*RegisteredStrategy {
	out := make([]*RegisteredStrategy, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Lookup returns the strategy registered under name.
func (r *Registry) Lookup(name string) (*RegisteredStrategy, error) {
	entry, ok := r.byName[name]
	if !ok {
		return nil, ErrStrategyNotFound.Clone().WithMetadata(map[string]any{"strategy": name})
	}
	return entry, nil
}

// Refresh implements Refresher by delegating to the named strategy.
func (r *Registry) Refresh(ctx context.Context, strategy, refreshToken string) (*Tokens, error) {
	entry, err := r.Lookup(strategy)
	if err != nil {
		return nil, err
	}
	return entry.Strategy.Refresh(ctx, refreshToken)
}

func (r *Registry) root(absolute bool) string {
	if absolute {
		return r.baseURL + r.prefix
	}
	return ""
}

// LoginURL returns the login route of a strategy.
func (r *Registry) LoginURL(name string, absolute bool) string {
	return r.root(absolute) + "/auth/" + name + "/login"
}

// FailureURL returns the failure page route of a strategy.
func (r *Registry) FailureURL(name string, absolute bool) string {
	return r.root(absolute) + "/auth/" + name + "/error"
}

// ConnectURL returns the connection route of a strategy.
func (r *Registry) ConnectURL(name string, absolute bool) string {
	return r.root(absolute) + "/auth/" + name + "/connect"
}

// CallbackURL returns the callback route of a strategy. An explicit callback
// URL is returned verbatim when absolute, and as its path without the prefix
// otherwise.
func (r *Registry) CallbackURL(name string, absolute bool) string {
	spec := StrategySpec{Name: name}
	if entry, ok := r.byName[name]; ok {
		spec = entry.Spec
	}
	return r.callbackURL(spec, absolute)
}

func (r *Registry) callbackURL(spec StrategySpec, absolute bool) string {
	if spec.CallbackURL == "" {
		return r.root(absolute) + "/auth/" + spec.Name + "/callback"
	}
	if absolute {
		return spec.CallbackURL
	}
	parsed, err := url.Parse(spec.CallbackURL)
	if err != nil {
		return spec.CallbackURL
	}
	return r.stripPrefix(parsed.Path)
}

func (r *Registry) stripPrefix(path string) string {
	if r.prefix == "" || !strings.HasPrefix(path, r.prefix) {
		return path
	}
	rest := path[len(r.prefix):]
	if rest == "" || rest[0] == '/' {
		return rest
	}
	return path
}

// StrategyURLs lists the routes of one strategy.
type StrategyURLs struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	LoginURL    string `json:"login_url"`
	CallbackURL string `json:"callback_url"`
	FailureURL  string `json:"failure_url"`
}

// URLs returns the absolute routes of every strategy, in registration order.
func (r *Registry) URLs() []StrategyURLs {
	out := make([]StrategyURLs, 0, len(r.ordered))
	for _, entry := range r.ordered {
		name := entry.Spec.Name
		out = append(out, StrategyURLs{
			Name:        name,
			Label:       entry.Spec.Label,
			LoginURL:    r.LoginURL(name, true),
			CallbackURL: r.callbackURL(entry.Spec, true),
			FailureURL:  r.FailureURL(name, true),
		})
	}
	return out
}

// LoginLinkContext describes the page a login link is rendered on.
type LoginLinkContext struct {
	Locale      string
	DocumentID  string
	MultiLocale bool
}

// LoginLink is a rendered login link.
type LoginLink struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Href  string `json:"href"`
}

// LoginLinks returns one link per strategy. On multi locale sites the links
// carry the handoff parameters so the session follows the user to the
// published version of the current locale.
func (r *Registry) LoginLinks(lc LoginLinkContext) []LoginLink {
	out := make([]LoginLink, 0, len(r.ordered))
	for _, entry := range r.ordered {
		href := r.LoginURL(entry.Spec.Name, true)
		if lc.MultiLocale && lc.Locale != "" {
			q := url.Values{}
			q.Set(QueryOldLocale, lc.Locale)
			q.Set(QueryNewLocale, strings.Replace(lc.Locale, ":draft", ":published", 1))
			if lc.DocumentID != "" {
				q.Set(QueryOldDocumentID, lc.DocumentID)
			}
			href += "?" + q.Encode()
		}
		out = append(out, LoginLink{
			Name:  entry.Spec.Name,
			Label: entry.Spec.Label,
			Href:  href,
		})
	}
	return out
}
