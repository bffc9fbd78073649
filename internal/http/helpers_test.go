package http

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"flowload/internal/config"
)

// parseFlow parses a YAML flow document, substituting BASE_URL with the
// test server's address.
func parseFlow(t *testing.T, doc string, srv *httptest.Server) *config.Config {
	t.Helper()
	if srv != nil {
		doc = strings.ReplaceAll(doc, "BASE_URL", srv.URL)
	}
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	return cfg
}

func newTestExecutor(t *testing.T, doc string, srv *httptest.Server, opts ...Option) *Executor {
	t.Helper()
	cfg := parseFlow(t, doc, srv)
	if srv != nil {
		opts = append([]Option{WithClient(srv.Client())}, opts...)
	}
	return NewExecutor(cfg, opts...)
}

func mustStep(t *testing.T, e *Executor, name string) *config.Step {
	t.Helper()
	s, ok := e.FindStep(name)
	require.True(t, ok, "step %q not found", name)
	return s
}
