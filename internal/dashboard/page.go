package dashboard

import "net/http"

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>GWP Dashboard</title>
<style>
  :root {
    --bg: #0d1117;
    --surface: #161b22;
    --surface-hover: #1c2129;
    --border: #30363d;
    --text: #e6edf3;
    --text-dim: #8b949e;
    --accent: #58a6ff;
    --green: #3fb950;
    --yellow: #d29922;
    --red: #f85149;
    --purple: #bc8cff;
  }
  * { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Helvetica, Arial, sans-serif;
    background: var(--bg);
    color: var(--text);
    font-size: 14px;
    line-height: 1.5;
    display: flex;
    min-height: 100vh;
  }
  aside {
    width: 220px;
    background: var(--surface);
    border-right: 1px solid var(--border);
    padding: 16px 0;
    flex-shrink: 0;
  }
  body.sidebar-collapsed aside { width: 56px; }
  body.sidebar-collapsed aside .label { display: none; }
  aside h1 { font-size: 18px; padding: 0 16px 12px; }
  aside h1 span { color: var(--accent); }
  aside a {
    display: block;
    padding: 8px 16px;
    color: var(--text-dim);
    text-decoration: none;
    cursor: pointer;
  }
  aside a.active, aside a:hover { color: var(--text); background: var(--surface-hover); }
  main { flex: 1; padding: 16px; overflow-x: auto; }
  header {
    display: flex;
    align-items: center;
    justify-content: space-between;
    margin-bottom: 16px;
    padding-bottom: 12px;
    border-bottom: 1px solid var(--border);
  }
  header h2 { font-size: 20px; font-weight: 600; }
  .meta { font-size: 12px; color: var(--text-dim); }
  .btn {
    background: var(--surface);
    color: var(--text);
    border: 1px solid var(--border);
    border-radius: 6px;
    padding: 4px 12px;
    cursor: pointer;
  }
  .btn:hover { border-color: var(--accent); }

  /* KPIs */
  .kpis { display: grid; grid-template-columns: repeat(4, 1fr); gap: 12px; margin-bottom: 16px; }
  .kpi { background: var(--surface); border: 1px solid var(--border); border-radius: 8px; padding: 12px; }
  .kpi .value { font-size: 24px; font-weight: 600; }
  .kpi .name { font-size: 11px; color: var(--text-dim); text-transform: uppercase; }
  .alert { padding: 8px 12px; border-radius: 6px; margin-bottom: 12px; background: #2a1f0d; color: var(--yellow); }
  .alert.urgent { background: #2d1a1a; color: var(--red); }

  /* Filters */
  .filters { display: flex; flex-wrap: wrap; gap: 8px; margin-bottom: 8px; }
  .filters select, .filters input {
    background: var(--surface);
    color: var(--text);
    border: 1px solid var(--border);
    border-radius: 6px;
    padding: 4px 8px;
  }
  .chips { display: flex; flex-wrap: wrap; gap: 6px; margin-bottom: 12px; }
  .chip { font-size: 11px; padding: 2px 8px; border-radius: 12px; background: #1f3a5f; color: var(--accent); cursor: pointer; }

  /* Views */
  table { width: 100%; border-collapse: collapse; }
  th {
    text-align: left;
    padding: 8px 14px;
    font-size: 11px;
    color: var(--text-dim);
    text-transform: uppercase;
    border-bottom: 1px solid var(--border);
  }
  td { padding: 8px 14px; border-bottom: 1px solid var(--border); font-size: 13px; vertical-align: top; }
  tr:hover { background: var(--surface-hover); }
  .meta-text { font-size: 11px; color: var(--text-dim); }
  .code-cell { font-family: monospace; color: var(--purple); }
  .status-badge { display: inline-block; padding: 2px 8px; border-radius: 12px; font-size: 11px; font-weight: 600; }
  .status-badge.pendiente { background: #1f2d3d; color: var(--accent); }
  .status-badge.progreso { background: #2a1f0d; color: var(--yellow); }
  .status-badge.listo { background: #0d2818; color: var(--green); }
  .empty-state { padding: 32px; text-align: center; color: var(--text-dim); font-style: italic; }
  .repo-grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(280px, 1fr)); gap: 12px; }
  .repo-card, .obs-card { background: var(--surface); border: 1px solid var(--border); border-radius: 8px; padding: 12px; }
  .obs-card { display: flex; gap: 12px; margin-bottom: 8px; }
  .avatar { width: 32px; height: 32px; border-radius: 50%; background: var(--accent); color: var(--bg); display: flex; align-items: center; justify-content: center; font-weight: 700; }
  .tag { font-size: 10px; padding: 1px 6px; border-radius: 4px; background: var(--border); margin-right: 4px; }
  .gantt-row, .gantt-header { display: flex; border-bottom: 1px solid var(--border); }
  .gantt-label { width: 200px; padding: 4px; font-size: 12px; white-space: nowrap; overflow: hidden; text-overflow: ellipsis; }
  .gantt-scale { flex: 1; text-align: center; }
  .gantt-track { flex: 1; position: relative; height: 28px; }
  .gantt-bar { position: absolute; top: 5px; height: 18px; background: var(--accent); border-radius: 4px; }
  .cal-grid td { height: 72px; width: 14%; }
  .cal-day.today { outline: 1px solid var(--accent); }
  .cal-event { font-size: 11px; padding: 1px 4px; border-radius: 4px; margin-top: 2px; }
  .cal-event.entrega { background: #1f3a5f; }
  .cal-event.hito { background: #2a1f0d; }

  /* Chat */
  .chat { margin-top: 16px; background: var(--surface); border: 1px solid var(--border); border-radius: 8px; padding: 12px; }
  .chat-log { max-height: 320px; overflow-y: auto; margin-bottom: 8px; }
  .chat-msg { margin-bottom: 8px; white-space: pre-wrap; }
  .chat-msg.user { color: var(--accent); }
  .chat-msg .cite { color: var(--purple); cursor: pointer; }
  .chat-suggest { font-size: 12px; color: var(--yellow); cursor: pointer; display: block; }
  .chat input { width: 80%; }
  .toast { position: fixed; bottom: 16px; right: 16px; background: #2d1a1a; color: var(--red); padding: 8px 14px; border-radius: 6px; display: none; }
</style>
</head>
<body>
<aside>
  <h1><span>GWP</span> <span class="label">Panel</span></h1>
  <a data-view="stats" class="active"><span class="label">Resumen</span></a>
  <div id="viewLinks"></div>
  <a data-view="gantt"><span class="label">Gantt</span></a>
  <a data-view="calendar"><span class="label">Calendario</span></a>
  <a id="toggleSidebar"><span class="label">Contraer</span> &#8646;</a>
</aside>
<main>
  <header>
    <h2 id="title">Resumen</h2>
    <div class="meta"><span id="user"></span> &middot; <span id="updated"></span> <button class="btn" id="refresh">Actualizar</button></div>
  </header>
  <div id="filters" class="filters"></div>
  <div id="chips" class="chips"></div>
  <div id="content"></div>
  <div class="chat" id="chat" style="display:none">
    <div class="chat-log" id="chatLog"></div>
    <input id="chatInput" placeholder="Pregunta sobre los documentos filtrados..."> <button class="btn" id="chatSend">Enviar</button>
  </div>
</main>
<div class="toast" id="toast"></div>
<script>
let current = 'stats';
let selection = {};
let term = '';

function esc(s) {
  const d = document.createElement('div');
  d.textContent = s == null ? '' : String(s);
  return d.innerHTML;
}

function toast(msg) {
  const t = document.getElementById('toast');
  t.textContent = msg;
  t.style.display = 'block';
  setTimeout(() => { t.style.display = 'none'; }, 4000);
}

async function api(url, opts) {
  const resp = await fetch(url, opts);
  const ct = resp.headers.get('Content-Type') || '';
  const body = ct.includes('json') ? await resp.json() : await resp.text();
  if (!resp.ok) throw new Error((body && body.error) || ('HTTP ' + resp.status));
  return body;
}

function query() {
  const p = new URLSearchParams();
  for (const [k, v] of Object.entries(selection)) if (v) p.set(k, v);
  if (term) p.set('q', term);
  return p.toString();
}

async function loadViews() {
  const views = await api('/api/views');
  document.getElementById('viewLinks').innerHTML = views.map(v =>
    '<a data-view="' + esc(v.name) + '"><span class="label">' + esc(v.title || v.name) + '</span></a>').join('');
  document.querySelectorAll('aside a[data-view]').forEach(a => a.onclick = () => show(a.dataset.view));
}

async function show(view) {
  if (view !== current) { selection = {}; term = ''; }
  current = view;
  document.querySelectorAll('aside a[data-view]').forEach(a => a.classList.toggle('active', a.dataset.view === view));
  document.getElementById('filters').innerHTML = '';
  document.getElementById('chips').innerHTML = '';
  document.getElementById('chat').style.display = view === 'repositorio' ? 'block' : 'none';
  try {
    if (view === 'stats') return await showStats();
    if (view === 'gantt' || view === 'calendar') {
      document.getElementById('title').textContent = view === 'gantt' ? 'Gantt' : 'Calendario';
      document.getElementById('content').innerHTML = await api('/views/' + view);
      return;
    }
    const snap = await api('/api/views/' + view + '?' + query());
    selection = snap.selection || {};
    document.getElementById('title').textContent = snap.title || view;
    document.getElementById('updated').textContent = snap.records.length + ' de ' + snap.total;
    drawFilters(snap);
    document.getElementById('content').innerHTML = await api('/views/' + view + '?' + query());
  } catch (e) {
    toast(e.message);
  }
}

function drawFilters(snap) {
  const parts = snap.facets.map(f => {
    const opts = (snap.options[f.id] || []).map(o =>
      '<option' + (selection[f.id] === o ? ' selected' : '') + '>' + esc(o) + '</option>').join('');
    return '<select data-facet="' + esc(f.id) + '"><option value="">' + esc(f.label || f.id) + '</option>' + opts + '</select>';
  });
  if (snap.search) parts.push('<input id="search" placeholder="Buscar..." value="' + esc(term) + '">');
  const el = document.getElementById('filters');
  el.innerHTML = parts.join('');
  el.querySelectorAll('select').forEach(s => s.onchange = () => { selection[s.dataset.facet] = s.value; show(current); });
  const search = document.getElementById('search');
  if (search) search.onchange = () => { term = search.value; show(current); };
  document.getElementById('chips').innerHTML = snap.chips.map(c =>
    '<span class="chip" data-facet="' + esc(c.facet_id) + '">' + esc(c.label) + ': ' + esc(c.value) + ' &times;</span>').join('');
  document.querySelectorAll('.chip').forEach(c => c.onclick = () => { selection[c.dataset.facet] = ''; show(current); });
}

async function showStats() {
  document.getElementById('title').textContent = 'Resumen';
  const s = await api('/api/stats');
  let html = '<div class="kpis">' +
    '<div class="kpi"><div class="value">' + s.total + '</div><div class="name">Actividades</div></div>' +
    '<div class="kpi"><div class="value">' + s.done + '</div><div class="name">Completadas</div></div>' +
    '<div class="kpi"><div class="value">' + s.in_progress + '</div><div class="name">En progreso</div></div>' +
    '<div class="kpi"><div class="value">' + s.milestones + '</div><div class="name">Hitos</div></div></div>';
  html += '<p class="meta">Avance: ' + s.progress_pct.toFixed(1) + '%</p>';
  if (s.due_this_week > 0) {
    html += '<div class="alert' + (s.deadline_high ? ' urgent' : '') + '">' + s.due_this_week + ' actividades vencen en los próximos 7 días</div>';
  }
  html += '<h3>Próximos vencimientos</h3>';
  html += s.upcoming.length ? '<ul>' + s.upcoming.map(r => '<li>' + esc(r.activity_code) + ' ' + esc(r.task_name) + ' (' + esc(r.fecha_fin) + ')</li>').join('') + '</ul>'
    : '<div class="empty-state">No hay vencimientos próximos.</div>';
  html += '<h3>Movimientos recientes</h3>';
  html += s.recent.length ? '<ul>' + s.recent.map(r => '<li>' + esc(r.task_name) + ' <span class="meta-text">' + esc(r.status) + '</span></li>').join('') + '</ul>'
    : '<div class="empty-state">No hay movimientos recientes.</div>';
  html += '<h3>Por producto</h3><table>' + s.by_product.map(c => '<tr><td>' + esc(c.label) + '</td><td>' + c.count + '</td></tr>').join('') + '</table>';
  document.getElementById('content').innerHTML = html;
}

function renderReply(turn) {
  const body = esc(turn.reply.body).replace(/\[\[ID:\s*(\d+)\s*\]\]/g, '<span class="cite">[$1]</span>');
  const suggestions = (turn.reply.suggested_follow_ups || []).map(s =>
    '<span class="chat-suggest">' + esc(s) + '</span>').join('');
  return '<div class="chat-msg">' + body + suggestions + '</div>';
}

async function ask(question) {
  const log = document.getElementById('chatLog');
  log.innerHTML += '<div class="chat-msg user">' + esc(question) + '</div>';
  try {
    const turn = await api('/api/chat', {
      method: 'POST',
      headers: { 'Content-Type': 'application/json' },
      body: JSON.stringify({ question: question, filters: selection, term: term }),
    });
    log.innerHTML += renderReply(turn);
    log.querySelectorAll('.chat-suggest').forEach(s => s.onclick = () => ask(s.textContent));
  } catch (e) {
    toast(e.message);
  }
  log.scrollTop = log.scrollHeight;
}

document.getElementById('chatSend').onclick = () => {
  const input = document.getElementById('chatInput');
  if (input.value.trim()) ask(input.value.trim());
  input.value = '';
};

document.getElementById('refresh').onclick = async () => {
  try { await api('/api/refresh', { method: 'POST' }); show(current); } catch (e) { toast(e.message); }
};

document.getElementById('toggleSidebar').onclick = async () => {
  const collapsed = document.body.classList.toggle('sidebar-collapsed');
  try {
    await api('/api/prefs', { method: 'PUT', body: JSON.stringify({ 'sidebar-collapsed': String(collapsed) }) });
  } catch (e) { /* prefs are optional */ }
};

(async () => {
  try {
    const prefs = await api('/api/prefs');
    if (prefs['sidebar-collapsed'] === 'true') document.body.classList.add('sidebar-collapsed');
  } catch (e) { /* prefs are optional */ }
  try {
    const s = await api('/api/session');
    document.getElementById('user').textContent = s.logged_in ? s.user.nombre + (s.read_only ? ' (solo lectura)' : '') : 'sin sesión';
  } catch (e) { /* no backend */ }
  await loadViews();
  show('stats');
})();
</script>
</body>
</html>
`
