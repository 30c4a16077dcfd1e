package fan_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/fan/pkg/fan"
)

func TestParseAddressNormalizesDomain(t *testing.T) {
	addr, err := fan.ParseAddress("Alice@EXAMPLE.org")
	require.NoError(t, err)
	assert.Equal(t, "Alice", addr.Identifier())
	assert.Equal(t, "example.org", addr.Domain())
	assert.Equal(t, "did:fan:example.org:Alice", addr.DID().String())
}

func TestWebsiteRejectsMalformedAddress(t *testing.T) {
	site, err := fan.NewWebsite()
	require.NoError(t, err)

	_, err = site.BeginAuthentication(context.Background(), "missing-the-at-sign")
	require.ErrorIs(t, err, fan.ErrMalformedAddress)
}

func TestWebsiteHandlerRoutes(t *testing.T) {
	site, err := fan.NewWebsite()
	require.NoError(t, err)
	handler, err := site.Handler()
	require.NoError(t, err)

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	res, err := http.Get(ts.URL + "/live")
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(ts.URL + "/fan/auth")
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestAgentServesSignedDocuments(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "fan.did"), []byte(`{"id":"did:fan:example.org"}`), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(root, "user"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "user", "alice.did"), []byte(`{"id":"did:fan:example.org:alice"}`), 0o600))

	source, err := fan.DirSource(root)
	require.NoError(t, err)

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	agent, err := fan.NewAgent(source, []jose.JSONWebKey{{Key: priv, KeyID: "#key-1"}})
	require.NoError(t, err)

	ts := httptest.NewServer(agent.Handler())
	t.Cleanup(ts.Close)

	res, err := http.Get(ts.URL + "/fan.did")
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/jose", res.Header.Get("Content-Type"))

	res, err = http.Get(ts.URL + "/did-fan/user/alice.did")
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(ts.URL + "/did-fan/user/ghost.did")
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestLoadSigningKeys(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	raw, err := json.Marshal(jose.JSONWebKey{Key: priv, KeyID: "#key-1"})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "agent.jwk")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	keys, err := fan.LoadSigningKeys(path)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "#key-1", keys[0].KeyID)
}
