package preview

import (
	"bytes"
	"net/http"
	"strings"
)

// ScriptTag is added to HTML pages just before </body>.
const ScriptTag = `<script src="/_rig/reload.js"></script>`

// maxInject is the largest page that will be buffered to add the script; larger pages are served as they are.
const maxInject = 4 << 20

// reloadScript reloads stylesheets in place when only css was rebuilt and the whole page otherwise.
const reloadScript = `(() => {
  if (window.__rigReload) return;
  window.__rigReload = true;
  const restyle = () => {
    for (const link of document.querySelectorAll('link[rel="stylesheet"]')) {
      const url = new URL(link.href);
      if (url.origin !== location.origin) continue;
      url.searchParams.set('_rig', Date.now());
      link.href = url.toString();
    }
  };
  const connect = () => {
    const es = new EventSource('/_rig/reload');
    es.onmessage = (e) => {
      let stage = '';
      try { stage = JSON.parse(e.data).stage; } catch (_) {}
      if (stage === 'css') restyle(); else location.reload();
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  };
  connect();
})();
`

func serveScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(`Content-Type`, `text/javascript; charset=utf-8`)
	w.Header().Set(`Cache-Control`, `no-cache`)
	_, _ = w.Write([]byte(reloadScript))
}

// injectScript adds ScriptTag to HTML responses.
func injectScript(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		iw := &injector{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(iw, r)
		iw.finish()
	})
}

type injector struct {
	http.ResponseWriter
	status      int
	buffer      []byte
	decided     bool // true once we know if the response is HTML
	passthrough bool
}

func (iw *injector) WriteHeader(status int) {
	iw.status = status
	iw.decide()
	if iw.passthrough {
		iw.ResponseWriter.WriteHeader(status)
	}
}

func (iw *injector) decide() {
	if iw.decided {
		return
	}
	iw.decided = true
	ct := iw.Header().Get(`Content-Type`)
	iw.passthrough = iw.status != http.StatusOK || !strings.HasPrefix(ct, `text/html`)
}

func (iw *injector) Write(data []byte) (int, error) {
	if !iw.decided {
		iw.WriteHeader(http.StatusOK)
	}
	if iw.passthrough {
		return iw.ResponseWriter.Write(data)
	}
	if len(iw.buffer)+len(data) > maxInject {
		iw.passthrough = true
		iw.ResponseWriter.WriteHeader(iw.status)
		if _, err := iw.ResponseWriter.Write(iw.buffer); err != nil {
			return 0, err
		}
		iw.buffer = nil
		return iw.ResponseWriter.Write(data)
	}
	iw.buffer = append(iw.buffer, data...)
	return len(data), nil
}

func (iw *injector) finish() {
	if iw.passthrough {
		return
	}
	if !iw.decided {
		iw.WriteHeader(iw.status)
		if iw.passthrough {
			return
		}
	}
	body := iw.buffer
	if i := bytes.LastIndex(body, []byte(`</body>`)); i >= 0 {
		out := make([]byte, 0, len(body)+len(ScriptTag))
		out = append(out, body[:i]...)
		out = append(out, ScriptTag...)
		body = append(out, body[i:]...)
	} else if len(body) > 0 {
		body = append(body, ScriptTag...)
	}
	iw.Header().Del(`Content-Length`)
	iw.Header().Del(`Content-Range`)
	iw.ResponseWriter.WriteHeader(iw.status)
	_, _ = iw.ResponseWriter.Write(body)
}
