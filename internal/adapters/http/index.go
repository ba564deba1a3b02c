package http

import "net/http"

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

// indexHTML is a minimal viewer. It registers as the primary surface when
// opened with ?role=main and renders the current plot from plot_state.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>plotbridge</title>
    <style>
        body { font-family: sans-serif; margin: 0; background: #1e1e1e; color: #ddd; }
        header { padding: 6px 12px; font-size: 12px; }
        #plot { display: flex; justify-content: center; align-items: center; height: calc(100vh - 32px); }
        #plot img { max-width: 100%; max-height: 100%; }
    </style>
</head>
<body>
<header><span id="status">Offline</span> <span id="count"></span></header>
<div id="plot"></div>
<script>
    const role = new URLSearchParams(location.search).get('role') || '';
    const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws?role=' + role);
    const send = (msg) => ws.readyState === 1 && ws.send(JSON.stringify(msg));
    let plots = [], current = -1;
    const render = () => {
        document.getElementById('count').textContent = plots.length ? (current + 1) + '/' + plots.length : '';
        const el = document.getElementById('plot');
        el.innerHTML = '';
        if (current >= 0 && plots[current]) {
            const img = document.createElement('img');
            img.src = plots[current].data;
            el.appendChild(img);
        }
    };
    const select = (i) => { if (plots[i]) send({command: 'select_plot', plot_id: String(plots[i].id)}); };
    ws.onopen = () => send({command: 'resize', width: window.innerWidth, height: window.innerHeight - 32});
    window.onresize = () => send({command: 'resize', width: window.innerWidth, height: window.innerHeight - 32});
    ws.onmessage = (ev) => {
        const msg = JSON.parse(ev.data);
        switch (msg.command) {
        case 'connection_status':
            document.getElementById('status').textContent = msg.status;
            break;
        case 'plot_state':
            plots = msg.plots || [];
            current = msg.currentIndex;
            render();
            break;
        case 'next_plot':
            select(current + 1);
            break;
        case 'previous_plot':
            select(current - 1);
            break;
        case 'clear_plots':
            send({command: 'clear_all'});
            break;
        case 'do_export':
            if (plots[current]) send({command: 'export_plot', plot_id: String(plots[current].id), format: msg.format});
            break;
        }
    };
</script>
</body>
</html>
`
