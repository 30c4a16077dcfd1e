package arch

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNoHTTPInCore verifies that core packages do not import HTTP machinery.
// All HTTP stays in the httpserve and httpfetch adapters; the core talks to
// the network through the Fetcher port only. The public facade is exempt
// because it hands out http.Handler values on purpose.
func TestNoHTTPInCore(t *testing.T) {
	prohibitedImports := []string{
		"github.com/gin-gonic/gin",
		"github.com/go-chi/chi",
		"github.com/gorilla/mux",
		"github.com/labstack/echo",
		"github.com/gofiber/fiber",
		"net/http",
	}

	httpFreeDirs := []string{
		"../core",
	}

	for _, dir := range httpFreeDirs {
		t.Run(dir, func(t *testing.T) {
			err := filepath.Walk(dir, func(path string, info fs.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if info.IsDir() || !strings.HasSuffix(path, ".go") {
					return nil
				}
				// Test files may spin up httptest servers.
				if strings.HasSuffix(path, "_test.go") {
					return nil
				}

				fset := token.NewFileSet()
				node, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
				if err != nil {
					return fmt.Errorf("failed to parse Go file %s: %w", path, err)
				}

				for _, imp := range node.Imports {
					importPath := strings.Trim(imp.Path.Value, `"`)
					for _, prohibited := range prohibitedImports {
						if importPath == prohibited || strings.HasPrefix(importPath, prohibited+"/") {
							t.Errorf("HTTP-free file %s imports prohibited package: %s", path, importPath)
						}
					}
				}
				return nil
			})
			require.NoError(t, err)
		})
	}
}

// TestHTTPConfinedToTransportAdapters verifies the inverse: the packages
// that do import net/http are exactly the transport and observability
// adapters.
func TestHTTPConfinedToTransportAdapters(t *testing.T) {
	allowedPrefixes := []string{
		"../adapters/primary/httpserve",
		"../adapters/secondary/httpfetch",
		"../adapters/secondary/health",
		"../adapters/metrics",
	}

	var offenders []string
	err := filepath.Walk("..", func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		fset := token.NewFileSet()
		node, parseErr := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if parseErr != nil {
			return fmt.Errorf("failed to parse Go file %s: %w", path, parseErr)
		}

		for _, imp := range node.Imports {
			if strings.Trim(imp.Path.Value, `"`) != "net/http" {
				continue
			}
			allowed := false
			for _, prefix := range allowedPrefixes {
				if strings.HasPrefix(filepath.ToSlash(path), prefix) {
					allowed = true
				}
			}
			if !allowed {
				offenders = append(offenders, path)
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, offenders, "net/http crept outside the transport adapters; route the call through a port")
}
