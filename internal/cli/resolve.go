package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sufield/fan/internal/adapters/logging"
	"github.com/sufield/fan/internal/adapters/secondary/httpfetch"
	"github.com/sufield/fan/internal/adapters/secondary/josecrypto"
	"github.com/sufield/fan/internal/adapters/secondary/memstore"
	"github.com/sufield/fan/internal/core/domain"
	coreerrors "github.com/sufield/fan/internal/core/errors"
	"github.com/sufield/fan/internal/core/services"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <address|did>",
	Short: "Resolve and verify a remote identity",
	Long: `Resolve an address or DID to its verified identity document.

Resolution fetches the domain's agent trust document, verifies it against
its own keys, then fetches the subject's document and verifies it against
the agent's. The printed document went through the full trust chain.

Examples:
  fan resolve alice@example.org
  fan resolve did:fan:example.org:alice --format json
  fan resolve alice@example.org --verbose`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().Duration("timeout", 15*time.Second, "Resolution timeout")
	resolveCmd.Flags().String("format", "text", "Output format: text or json")
	resolveCmd.Flags().BoolP("verbose", "v", false, "Show each resolution step")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	format, _ := cmd.Flags().GetString("format")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if format != "text" && format != "json" {
		return fmt.Errorf("%w: unsupported format %q, use 'text' or 'json'", ErrUsage, format)
	}

	did, err := parseResolveTarget(args[0])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	level := "error"
	if verbose {
		level = "debug"
	}
	logger := logging.New(level, "text", os.Stderr)

	resolver, err := buildResolver(timeout, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	doc, err := resolver.ResolveDID(ctx, did)
	if err != nil {
		return classifyResolveError(err)
	}

	return printDocument(doc, format)
}

func parseResolveTarget(raw string) (domain.DID, error) {
	if strings.HasPrefix(raw, "did:") {
		return domain.ParseDID(raw)
	}
	addr, err := domain.ParseAddress(raw)
	if err != nil {
		return domain.DID{}, err
	}
	return addr.DID(), nil
}

// buildResolver assembles a one-shot resolver with an in-memory cache.
func buildResolver(timeout time.Duration, logger *slog.Logger) (*services.Resolver, error) {
	metrics := &services.NoOpMetrics{}

	cache, err := services.NewDocumentCache(memstore.NewDocumentStore(), time.Minute, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	verifier, err := services.NewTrustVerifier(josecrypto.New(), logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	resolver, err := services.NewResolver(services.ResolverConfig{
		Fetcher:  httpfetch.New(httpfetch.Config{Timeout: timeout, Logger: logger}),
		Verifier: verifier,
		Cache:    cache,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return resolver, nil
}

func printDocument(doc *domain.DIDDocument, format string) error {
	if format == "json" {
		codec, err := domain.CodecFor(domain.MIMEJSONDID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		body, err := codec.Encode(doc)
		if err != nil {
			return fmt.Errorf("%w: failed to encode document: %v", ErrInternal, err)
		}
		fmt.Println(string(body))
		return nil
	}

	fmt.Printf("Subject: %s\n", doc.Subject().String())
	fmt.Println("Verification methods:")
	for _, m := range doc.VerificationMethods() {
		fmt.Printf("  %s (%s)\n", m.ID, m.Type)
	}
	if auth := doc.Authentication(); len(auth) > 0 {
		fmt.Printf("Authentication: %s\n", strings.Join(auth, ", "))
	}
	if invocation := doc.CapabilityInvocation(); len(invocation) > 0 {
		fmt.Printf("Capability invocation: %s\n", strings.Join(invocation, ", "))
	}
	return nil
}

func classifyResolveError(err error) error {
	switch {
	case errors.Is(err, coreerrors.ErrMalformedAddress),
		errors.Is(err, coreerrors.ErrMalformedPort),
		errors.Is(err, coreerrors.ErrUnsupportedDID):
		return fmt.Errorf("%w: %v", ErrUsage, err)
	case errors.Is(err, coreerrors.ErrAgentUntrusted),
		errors.Is(err, coreerrors.ErrSubjectUntrusted),
		errors.Is(err, coreerrors.ErrSignatureInvalid),
		errors.Is(err, coreerrors.ErrNoVerificationMethods),
		errors.Is(err, coreerrors.ErrSovereignRejected):
		return fmt.Errorf("%w: %v", ErrTrust, err)
	default:
		return fmt.Errorf("%w: %v", ErrRuntime, err)
	}
}
