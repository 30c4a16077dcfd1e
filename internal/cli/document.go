package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sufield/fan/internal/adapters/secondary/docsource"
	"github.com/sufield/fan/internal/adapters/secondary/josecrypto"
	"github.com/sufield/fan/internal/adapters/secondary/localsigner"
	"github.com/sufield/fan/internal/core/domain"
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Create and sign identity documents",
	Long: `Create and sign the identity documents an agent serves.

A document lists the public verification keys of its subject. Documents in
the agent's document root are stored unsigned; the serving agent wraps and
signs them per request. Standalone signed envelopes are only needed for
sovereign identities.`,
}

var documentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an identity document",
	Long: `Create an identity document from public keys.

The subject is either an address or, for the deployment's own trust
document, a bare domain. Every given key becomes a verification method
usable for authentication.

Examples:
  # Subject document, written into the document root
  fan document create --subject alice@example.org --method alice.pub.jwk --root /var/lib/fan/documents

  # The agent's own trust document
  fan document create --agent example.org --method agent.pub.jwk --root /var/lib/fan/documents`,
	PreRunE: validateDocumentCreateFlags,
	RunE:    runDocumentCreate,
}

var documentSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Wrap a document in a signed envelope",
	Long: `Wrap a stored document in a signed trust envelope.

The envelope carries the document exactly as agents serve it over the wire.
Sovereign subjects register this envelope directly with accepting sites.

Example:
  fan document sign --in alice.did --key alice.jwk --out alice.envelope`,
	PreRunE: validateDocumentSignFlags,
	RunE:    runDocumentSign,
}

func init() {
	documentCreateCmd.Flags().String("subject", "", "Subject address (e.g. alice@example.org)")
	documentCreateCmd.Flags().String("agent", "", "Agent domain for the deployment's own trust document")
	documentCreateCmd.Flags().StringArrayP("method", "m", nil, "Public key file to embed as a verification method (repeatable)")
	documentCreateCmd.Flags().String("root", "", "Document root to place the file in")
	documentCreateCmd.Flags().StringP("out", "o", "", "Output file (default stdout, ignored with --root)")
	documentCreateCmd.Flags().String("content-type", domain.MIMEJSONDID, "Document encoding")
	documentCreateCmd.MarkFlagsMutuallyExclusive("subject", "agent")
	documentCreateCmd.MarkFlagFilename("method", "jwk", "json")

	documentSignCmd.Flags().String("in", "", "Document file to wrap")
	documentSignCmd.Flags().StringArrayP("key", "k", nil, "Private key file to sign with (repeatable)")
	documentSignCmd.Flags().String("content-type", domain.MIMEJSONDID, "Encoding of the document file")
	documentSignCmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
	documentSignCmd.MarkFlagFilename("in", "did", "json", "cbor")
	documentSignCmd.MarkFlagFilename("key", "jwk", "json")

	documentCmd.AddCommand(documentCreateCmd)
	documentCmd.AddCommand(documentSignCmd)
	rootCmd.AddCommand(documentCmd)
}

func validateDocumentCreateFlags(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	agent, _ := cmd.Flags().GetString("agent")
	if subject == "" && agent == "" {
		return fmt.Errorf("%w: either --subject or --agent must be provided", ErrUsage)
	}

	methods, _ := cmd.Flags().GetStringArray("method")
	if len(methods) == 0 {
		return fmt.Errorf("%w: at least one --method key is required", ErrUsage)
	}

	contentType, _ := cmd.Flags().GetString("content-type")
	if _, err := domain.CodecFor(contentType); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

func runDocumentCreate(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	agent, _ := cmd.Flags().GetString("agent")
	methodFiles, _ := cmd.Flags().GetStringArray("method")
	root, _ := cmd.Flags().GetString("root")
	outFile, _ := cmd.Flags().GetString("out")
	contentType, _ := cmd.Flags().GetString("content-type")

	did, err := documentSubject(subject, agent)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	methods := make([]domain.VerificationMethod, 0, len(methodFiles))
	ids := make([]string, 0, len(methodFiles))
	for i, path := range methodFiles {
		jwk, err := localsigner.ReadKeyFile(path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
		pub := jwk.Public()
		id := "#" + pub.KeyID
		if pub.KeyID == "" {
			id = fmt.Sprintf("#key-%d", i+1)
		}
		methods = append(methods, domain.VerificationMethod{
			ID:           id,
			Type:         domain.MethodTypeJSONWebKey2020,
			Controller:   did.String(),
			PublicKeyJWK: &pub,
		})
		ids = append(ids, id)
	}

	doc, err := domain.NewDIDDocument(did, methods, ids, ids)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	codec, err := domain.CodecFor(contentType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	body, err := codec.Encode(doc)
	if err != nil {
		return fmt.Errorf("%w: failed to encode document: %v", ErrInternal, err)
	}

	if root != "" {
		path, err := documentPath(root, did)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return fmt.Errorf("%w: failed to write %q: %v", ErrRuntime, path, err)
		}
		fmt.Printf("Document for %s written to %s\n", did.String(), path)
		return nil
	}

	if outFile != "" {
		if err := os.WriteFile(outFile, body, 0o644); err != nil {
			return fmt.Errorf("%w: failed to write %q: %v", ErrRuntime, outFile, err)
		}
		fmt.Printf("Document for %s written to %s\n", did.String(), outFile)
		return nil
	}

	if _, err := os.Stdout.Write(body); err != nil {
		return fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	return nil
}

func documentSubject(subject, agent string) (domain.DID, error) {
	if agent != "" {
		return domain.NewAgentDID(agent)
	}
	addr, err := domain.ParseAddress(subject)
	if err != nil {
		return domain.DID{}, err
	}
	if addr.IsSovereign() {
		return addr.SovereignDID(), nil
	}
	return addr.DID(), nil
}

// documentPath places a document where the directory source will find it.
func documentPath(root string, did domain.DID) (string, error) {
	if did.IsAgent() {
		return filepath.Join(root, docsource.AgentFileName), nil
	}
	dir := filepath.Join(root, docsource.SubjectDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: failed to create %q: %v", ErrRuntime, dir, err)
	}
	return filepath.Join(dir, did.Identifier()+".did"), nil
}

func validateDocumentSignFlags(cmd *cobra.Command, args []string) error {
	in, _ := cmd.Flags().GetString("in")
	if in == "" {
		return fmt.Errorf("%w: --in is required", ErrUsage)
	}
	keys, _ := cmd.Flags().GetStringArray("key")
	if len(keys) == 0 {
		return fmt.Errorf("%w: at least one --key is required", ErrUsage)
	}
	contentType, _ := cmd.Flags().GetString("content-type")
	if _, err := domain.CodecFor(contentType); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

func runDocumentSign(cmd *cobra.Command, args []string) error {
	in, _ := cmd.Flags().GetString("in")
	keyFiles, _ := cmd.Flags().GetStringArray("key")
	contentType, _ := cmd.Flags().GetString("content-type")
	outFile, _ := cmd.Flags().GetString("out")

	body, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("%w: failed to read %q: %v", ErrRuntime, in, err)
	}

	codec, err := domain.CodecFor(contentType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	doc, err := codec.Decode(body)
	if err != nil {
		return fmt.Errorf("%w: %q does not hold a %s document: %v", ErrUsage, in, contentType, err)
	}

	payload, err := domain.NewTrustPayload(body, contentType).Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	signer, err := localsigner.Load(josecrypto.New(), keyFiles...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	envelope, err := signer.Sign(cmd.Context(), payload)
	if err != nil {
		return fmt.Errorf("%w: signing failed: %v", ErrInternal, err)
	}

	if outFile != "" {
		if err := os.WriteFile(outFile, []byte(envelope+"\n"), 0o644); err != nil {
			return fmt.Errorf("%w: failed to write %q: %v", ErrRuntime, outFile, err)
		}
		fmt.Printf("Signed envelope for %s written to %s\n", doc.Subject().String(), outFile)
		return nil
	}

	fmt.Println(envelope)
	return nil
}
