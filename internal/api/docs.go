package api

const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>authtap API</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    body { height: 100vh; margin: 0; display: flex; flex-direction: column; background: #0d1117; }
    header { display: flex; justify-content: space-between; align-items: center; padding: 8px 16px;
      background: #161b22; border-bottom: 1px solid #30363d;
      font: 500 13px -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; color: #e6edf3; }
    header a { color: #58a6ff; text-decoration: none; }
    main { flex: 1; min-height: 0; }
  </style>
</head>
<body>
  <header>
    <span>authtap</span>
    <a href="/docs/events">Event feeds &rarr;</a>
  </header>
  <main>
    <elements-api
      apiDescriptionUrl="/openapi.json"
      router="hash"
      layout="sidebar"
      tryItCredentialsPolicy="same-origin"
      darkMode
    />
  </main>
</body>
</html>`

const eventsDocsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Event feeds - authtap</title>
  <style>
    body { margin: 0 auto; max-width: 860px; padding: 24px 16px 48px;
      font: 14px/1.65 -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      background: #0d1117; color: #c9d1d9; }
    a { color: #58a6ff; text-decoration: none; }
    h1, h2 { color: #e6edf3; font-weight: 600; }
    h2 { margin-top: 32px; border-bottom: 1px solid #30363d; padding-bottom: 4px; }
    code, pre { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 13px; }
    pre { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 12px; overflow-x: auto; }
    table { border-collapse: collapse; width: 100%; }
    td, th { border: 1px solid #30363d; padding: 6px 10px; text-align: left; vertical-align: top; }
    th { background: #161b22; }
  </style>
</head>
<body>
  <p><a href="/docs">&larr; REST API</a></p>
  <h1>Event feeds</h1>
  <p>Every envelope published on the internal bus is available live. Delivery is
  at-most-once: a slow client misses events rather than slowing capture down.</p>

  <h2>Endpoints</h2>
  <table>
    <tr><th>Path</th><th>Transport</th><th>Frame</th></tr>
    <tr><td><code>GET /api/v1/events</code></td><td>Server-Sent Events</td>
      <td><code>event:</code> the source, <code>data:</code> the JSON payload</td></tr>
    <tr><td><code>GET /api/v1/events/ws</code></td><td>WebSocket</td>
      <td>one text frame per envelope: <code>{"source": ..., "payload": ...}</code></td></tr>
  </table>
  <p>Both accept <code>?sources=a,b</code> to receive only the listed sources.</p>

  <h2>Sources</h2>
  <table>
    <tr><th>Source</th><th>Payload</th></tr>
    <tr><td><code>interceptor-traffic</code></td><td>a completed request record</td></tr>
    <tr><td><code>interceptor-auth</code></td><td><code>{"token": ..., "type": provenance}</code></td></tr>
    <tr><td><code>tracker-status</code></td><td>the active token status, sent on change and on expiry alerts</td></tr>
  </table>

  <h2>Example</h2>
<pre>curl -N 'http://127.0.0.1:8190/api/v1/events?sources=interceptor-auth'

event: interceptor-auth
data: {"token":"eyJhbGciOi...","type":"header"}</pre>

  <h2>Provenance values</h2>
  <p><code>fetch-options</code>, <code>header</code>, <code>resp-header</code>, <code>resp-body</code>,
  <code>xhr-send-header</code>, <code>xhr-body</code>, <code>xhr-header</code>, <code>storage</code>,
  <code>cookie</code>.</p>
</body>
</html>`
