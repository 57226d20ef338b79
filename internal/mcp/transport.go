package mcp

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// HTTPHandlerOptions configures the HTTP transport behavior.
type HTTPHandlerOptions struct {
	// Stateless disables session management. Use for simple tool servers
	// that don't need server-to-client requests. Default: false (stateful).
	Stateless bool
}

// NewHTTPHandler creates an HTTP handler for the MCP server using Streamable HTTP transport.
// Every MCP client shares the one document session.
func NewHTTPHandler(server *Server, opts *HTTPHandlerOptions) http.Handler {
	if opts == nil {
		opts = &HTTPHandlerOptions{}
	}

	sdkOpts := &mcp.StreamableHTTPOptions{
		Stateless: opts.Stateless,
	}

	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server.MCPServer()
	}, sdkOpts)
}

// MuxOptions selects the optional endpoints of NewMux.
type MuxOptions struct {
	Store   HealthChecker // reported by /health when set
	Metrics http.Handler  // served at /metrics when set
	HTTP    *HTTPHandlerOptions
}

// NewMux mounts the landing page, /mcp, /health and /metrics.
func NewMux(server *Server, opts MuxOptions) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", NewLandingHandler())
	mux.Handle("/mcp", NewHTTPHandler(server, opts.HTTP))
	mux.HandleFunc("/health", NewHealthHandler(server.session, opts.Store))
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}
	return mux
}
