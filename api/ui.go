package api

import "net/http"

// handleIndex serves a minimal single-page console for poking the query
// endpoint without curl.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

const indexHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Veridex</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
textarea { width: 100%; height: 5rem; }
pre { background: #f4f4f4; padding: 1rem; overflow-x: auto; white-space: pre-wrap; }
.warning { color: #b45309; }
</style>
</head>
<body>
<h1>Veridex</h1>
<p>Ask a question against the ingested knowledge base.</p>
<textarea id="question" placeholder="Your question"></textarea>
<p>
<label><input type="checkbox" id="attempts"> include attempts</label>
<button id="ask">Ask</button>
</p>
<div id="out"></div>
<script>
document.getElementById('ask').addEventListener('click', async () => {
  const out = document.getElementById('out');
  out.textContent = 'Working...';
  try {
    const res = await fetch('/v1/query', {
      method: 'POST',
      headers: {'Content-Type': 'application/json'},
      body: JSON.stringify({
        question: document.getElementById('question').value,
        include_attempts: document.getElementById('attempts').checked
      })
    });
    const data = await res.json();
    if (!res.ok) {
      out.textContent = data.error || res.statusText;
      return;
    }
    let html = '<h2>Answer</h2><pre>' + escapeHTML(data.answer) + '</pre>';
    html += '<p>Confidence: ' + data.confidenceScore.toFixed(1) + '/10';
    html += ' &middot; Correction loops: ' + data.correctionLoops;
    html += ' &middot; Sources used: ' + data.sourcesUsed + '</p>';
    if (data.warning) {
      html += '<p class="warning">' + escapeHTML(data.warning) + '</p>';
    }
    if (data.sources && data.sources.length) {
      html += '<h2>Sources</h2>';
      for (const src of data.sources) {
        html += '<p><strong>' + escapeHTML(src.title || src.path) + '</strong>';
        html += ' (similarity ' + src.similarity.toFixed(2) + ', relevance ' + src.relevance.toFixed(2) + ')</p>';
        html += '<pre>' + escapeHTML(src.snippet) + '</pre>';
      }
    }
    if (data.attempts && data.attempts.length) {
      html += '<h2>Attempts</h2><pre>' + escapeHTML(JSON.stringify(data.attempts, null, 2)) + '</pre>';
    }
    out.innerHTML = html;
  } catch (err) {
    out.textContent = String(err);
  }
});
function escapeHTML(text) {
  const div = document.createElement('div');
  div.textContent = text == null ? '' : text;
  return div.innerHTML;
}
</script>
</body>
</html>
`
