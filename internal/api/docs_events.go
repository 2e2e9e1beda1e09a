package api

const eventsDocsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Event Stream | Rolefit</title>
  <style>
    *, *::before, *::after { box-sizing: border-box; }
    body {
      margin: 0;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
    }
    a { color: #58a6ff; text-decoration: none; }
    nav {
      background: #161b22;
      border-bottom: 1px solid #30363d;
      padding: 0 24px;
      height: 48px;
      display: flex;
      align-items: center;
      gap: 24px;
    }
    nav .brand { font-weight: 600; font-size: 15px; color: #e6edf3; }
    main { max-width: 860px; margin: 0 auto; padding: 32px 16px 64px; }
    h1 { margin: 0 0 8px; font-size: 28px; font-weight: 600; color: #e6edf3; }
    h2 {
      margin: 36px 0 12px;
      font-size: 18px;
      color: #e6edf3;
      padding-bottom: 8px;
      border-bottom: 1px solid #21262d;
    }
    table { width: 100%; border-collapse: collapse; margin-bottom: 20px; font-size: 13px; }
    th { text-align: left; padding: 8px 12px; background: #161b22; color: #8b949e; border-bottom: 1px solid #30363d; }
    td { padding: 8px 12px; border-bottom: 1px solid #21262d; vertical-align: top; }
    code, pre {
      font-family: "SFMono-Regular", Consolas, "Liberation Mono", Menlo, monospace;
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 4px;
      color: #e6edf3;
    }
    code { font-size: 12px; padding: 1px 5px; }
    pre { padding: 16px; overflow-x: auto; font-size: 13px; }
    pre code { border: none; padding: 0; }
  </style>
</head>
<body>
<nav>
  <span class="brand">Rolefit</span>
  <a href="/docs">REST API Docs</a>
</nav>
<main>
  <h1>Event Stream</h1>
  <p>Handoff reports, affordance changes and tab tracking are published as Server-Sent Events.</p>

  <h2 id="endpoint">Endpoint</h2>
  <pre><code>GET /api/v1/events?feeds=handoff,attach</code></pre>
  <p>Omit <code>feeds</code> to receive every feed; an unknown feed name is a 400. Add
  <code>replay=N</code> to get up to N recent matching events before live ones. Idle streams
  receive a <code>: keep-alive</code> comment every 15 seconds. The last events of a feed can also
  be fetched with <code>GET /api/v1/events/recent?feed=handoff&amp;limit=20</code>.</p>

  <h2 id="feeds">Feeds</h2>
  <table>
    <tr><th>Feed</th><th>Kinds</th><th>Published when</th></tr>
    <tr><td><code>handoff</code></td><td><code>producer.opened</code>, <code>producer.failed</code>, <code>consumer.delivered</code>, <code>consumer.timed_out</code>, <code>consumer.skipped_*</code></td><td>A capture or delivery finishes.</td></tr>
    <tr><td><code>attach</code></td><td><code>attach.step</code></td><td>The trigger button is inserted or removed.</td></tr>
    <tr><td><code>tabs</code></td><td><code>tab.source</code>, <code>tab.destination</code>, <code>tab.released</code></td><td>A tab starts or stops being tracked.</td></tr>
  </table>

  <h2 id="format">Format</h2>
  <pre><code>id: 3f1c2a9e-...
event: handoff
data: {"stage":"consumer","outcome":"delivered","channel":"linkedin","tab":"...","signature":"Senior Engineer","attempts":3,"elapsed_ms":1450}</code></pre>

  <h2 id="example">Example</h2>
  <pre><code>curl -N http://127.0.0.1:8190/api/v1/events?feeds=handoff</code></pre>
</main>
</body>
</html>`
