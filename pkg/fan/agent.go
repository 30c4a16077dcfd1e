package fan

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/sufield/fan/internal/adapters/primary/httpserve"
	"github.com/sufield/fan/internal/adapters/secondary/docsource"
	"github.com/sufield/fan/internal/adapters/secondary/josecrypto"
	"github.com/sufield/fan/internal/adapters/secondary/localsigner"
	"github.com/sufield/fan/internal/core/services"
)

// AgentOption configures agent creation behavior.
type AgentOption func(*agentOpts)

// agentOpts holds the configuration for agent creation.
type agentOpts struct {
	logger *slog.Logger
	clock  func() time.Time
}

// WithAgentLogger routes the agent's diagnostics to the given logger.
func WithAgentLogger(logger *slog.Logger) AgentOption {
	return func(opts *agentOpts) {
		opts.logger = logger
	}
}

// WithAgentClock overrides time.Now for conditional-request decisions. This
// is primarily used by tests.
func WithAgentClock(clock func() time.Time) AgentOption {
	return func(opts *agentOpts) {
		opts.clock = clock
	}
}

// Agent is the document-serving role: it makes a domain's identities
// resolvable by publishing the domain's trust document and its users'
// documents, every response signed with the deployment's keys.
//
// Usage:
//
//	source, err := fan.DirSource("/var/lib/fan/documents")
//	keys, err := fan.LoadSigningKeys("/etc/fan/agent.jwk")
//	agent, err := fan.NewAgent(source, keys)
//	if err != nil {
//		log.Fatal(err)
//	}
//	http.ListenAndServe(":8080", agent.Handler())
//
// The published trust document must list exactly the public halves of the
// signing keys, or remote verifiers will reject everything the agent
// serves.
type Agent struct {
	publisher *services.AgentPublisher
	handler   http.Handler
}

// NewAgent creates an Agent serving the documents in source, signing with
// the given private JWKs.
func NewAgent(source DocumentSource, keys []jose.JSONWebKey, opts ...AgentOption) (*Agent, error) {
	options := &agentOpts{}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	signer, err := localsigner.New(localsigner.Config{
		Gateway: josecrypto.New(),
		Keys:    keys,
	})
	if err != nil {
		return nil, err
	}

	publisher, err := services.NewAgentPublisher(services.AgentConfig{
		Source: source,
		Signer: signer,
		Logger: options.logger,
		Clock:  options.clock,
	})
	if err != nil {
		return nil, err
	}

	server, err := httpserve.New(httpserve.Config{
		Publisher: publisher,
		Logger:    options.logger,
	})
	if err != nil {
		return nil, err
	}

	return &Agent{publisher: publisher, handler: server.Handler()}, nil
}

// Handler returns the agent's HTTP surface: GET /fan.did serves the trust
// document, GET /did-fan/user/{name}.did serves subject documents, /live
// and /ready probe the process. All document responses are signed envelopes
// with conditional-request support.
func (a *Agent) Handler() http.Handler {
	return a.handler
}

// DirSource serves documents from a directory laid out as the protocol
// expects: fan.did at the root and user documents under user/.
func DirSource(root string) (DocumentSource, error) {
	return docsource.NewDir(docsource.DirConfig{Root: root})
}

// LoadSigningKeys reads one private JWK per file, in order.
func LoadSigningKeys(paths ...string) ([]jose.JSONWebKey, error) {
	keys := make([]jose.JSONWebKey, 0, len(paths))
	for _, path := range paths {
		key, err := localsigner.ReadKeyFile(path)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
