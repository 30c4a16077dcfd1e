package cli

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signing key",
	Long: `Generate a fresh signing key as a JSON Web Key.

The private key is written to --out (or stdout) and should feed the agent's
signing_keys configuration. The public half, written with --pub, belongs in
the verification methods of the documents the key signs for.

Examples:
  # EC P-256 key pair for an agent
  fan keygen --out agent.jwk --pub agent.pub.jwk

  # Ed25519 key for session tokens
  fan keygen --type ed25519 --out session.jwk`,
	PreRunE: validateKeygenFlags,
	RunE:    runKeygen,
}

func init() {
	keygenCmd.Flags().StringP("type", "t", "ec", "Key type: ec or ed25519")
	keygenCmd.Flags().String("curve", "P-256", "EC curve: P-256, P-384, or P-521")
	keygenCmd.Flags().StringP("out", "o", "", "Private key file (default stdout)")
	keygenCmd.Flags().String("pub", "", "Public key file (optional)")
	keygenCmd.Flags().String("kid", "", "Key id (default: base58 JWK thumbprint)")

	keygenCmd.RegisterFlagCompletionFunc("type", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"ec\tECDSA signing key",
			"ed25519\tEd25519 signing key",
		}, cobra.ShellCompDirectiveNoFileComp
	})
	keygenCmd.RegisterFlagCompletionFunc("curve", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"P-256", "P-384", "P-521"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(keygenCmd)
}

func validateKeygenFlags(cmd *cobra.Command, args []string) error {
	keyType, _ := cmd.Flags().GetString("type")
	switch keyType {
	case "ec", "ed25519":
	default:
		return fmt.Errorf("%w: unsupported key type %q, use 'ec' or 'ed25519'", ErrUsage, keyType)
	}

	curveName, _ := cmd.Flags().GetString("curve")
	if keyType == "ec" {
		switch curveName {
		case "P-256", "P-384", "P-521":
		default:
			return fmt.Errorf("%w: unsupported curve %q, use 'P-256', 'P-384' or 'P-521'", ErrUsage, curveName)
		}
	}
	return nil
}

func runKeygen(cmd *cobra.Command, args []string) error {
	keyType, _ := cmd.Flags().GetString("type")
	curveName, _ := cmd.Flags().GetString("curve")
	outFile, _ := cmd.Flags().GetString("out")
	pubFile, _ := cmd.Flags().GetString("pub")
	kid, _ := cmd.Flags().GetString("kid")

	jwk, err := generateKey(keyType, curveName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if kid == "" {
		thumb, err := jwk.Thumbprint(crypto.SHA256)
		if err != nil {
			return fmt.Errorf("%w: failed to compute key thumbprint: %v", ErrInternal, err)
		}
		kid = base58.Encode(thumb)
	}
	jwk.KeyID = kid

	privJSON, err := json.MarshalIndent(jwk, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode private key: %v", ErrInternal, err)
	}

	if outFile == "" {
		fmt.Println(string(privJSON))
	} else {
		if err := os.WriteFile(outFile, append(privJSON, '\n'), 0o600); err != nil {
			return fmt.Errorf("%w: failed to write %q: %v", ErrRuntime, outFile, err)
		}
		fmt.Printf("Private key written to %s (kid %s)\n", outFile, kid)
	}

	if pubFile != "" {
		pubJSON, err := json.MarshalIndent(jwk.Public(), "", "  ")
		if err != nil {
			return fmt.Errorf("%w: failed to encode public key: %v", ErrInternal, err)
		}
		if err := os.WriteFile(pubFile, append(pubJSON, '\n'), 0o644); err != nil {
			return fmt.Errorf("%w: failed to write %q: %v", ErrRuntime, pubFile, err)
		}
		fmt.Printf("Public key written to %s\n", pubFile)
	}

	return nil
}

func generateKey(keyType, curveName string) (jose.JSONWebKey, error) {
	switch keyType {
	case "ed25519":
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return jose.JSONWebKey{}, fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		return jose.JSONWebKey{Key: priv, Algorithm: string(jose.EdDSA), Use: "sig"}, nil
	default:
		var curve elliptic.Curve
		var alg jose.SignatureAlgorithm
		switch curveName {
		case "P-384":
			curve, alg = elliptic.P384(), jose.ES384
		case "P-521":
			curve, alg = elliptic.P521(), jose.ES512
		default:
			curve, alg = elliptic.P256(), jose.ES256
		}
		priv, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return jose.JSONWebKey{}, fmt.Errorf("failed to generate EC key: %w", err)
		}
		return jose.JSONWebKey{Key: priv, Algorithm: string(alg), Use: "sig"}, nil
	}
}
