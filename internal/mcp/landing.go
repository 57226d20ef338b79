package mcp

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>docchat</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #111827; color: #e5e7eb; min-height: 100vh; display: flex; align-items: center; justify-content: center; }
  .card { max-width: 600px; width: 90%; background: #1f2937; border-radius: 12px; padding: 2.5rem; }
  h1 { font-size: 1.75rem; margin-bottom: 0.5rem; }
  .subtitle { color: #9ca3af; margin-bottom: 1.75rem; }
  .section { margin-bottom: 1.5rem; }
  .section-title { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.1em; color: #6b7280; margin-bottom: 0.5rem; }
  a { color: #60a5fa; text-decoration: none; }
  pre { background: #111827; border: 1px solid #374151; border-radius: 8px; padding: 1rem; overflow-x: auto; font-size: 0.85rem; }
  code, .endpoint { font-family: "SF Mono", "Fira Code", Menlo, monospace; }
  .endpoint { color: #a5b4fc; }
  li { list-style: none; margin-bottom: 0.25rem; }
</style>
</head>
<body>
<div class="card">
  <h1>docchat</h1>
  <p class="subtitle">Ask questions about your documents over the Model Context Protocol.</p>

  <div class="section">
    <div class="section-title">Tools</div>
    <ul>
      <li><code>ingest_documents</code> index files or a GitHub location</li>
      <li><code>ask_question</code> answer from the indexed documents</li>
      <li><code>get_history</code> recent questions and answers</li>
      <li><code>reset_session</code> drop the index and conversation</li>
      <li><code>get_status</code> session summary</li>
    </ul>
  </div>

  <div class="section">
    <div class="section-title">Endpoints</div>
    <p><a href="/mcp" class="endpoint">/mcp</a> MCP Streamable HTTP</p>
    <p><a href="/health" class="endpoint">/health</a> Health check</p>
    <p><a href="/metrics" class="endpoint">/metrics</a> Prometheus metrics</p>
  </div>
</div>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(landingHTML))
	}
}
