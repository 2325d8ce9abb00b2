package httpapi

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"
	"time"
)

// The bundled surface: a demo timeline page and the socket client that
// exposes window.timeline to it. A configured UI dir replaces the page but
// /bridge.js is always served from here.
const (
	indexAsset        = "index.html"
	bridgeScriptAsset = "bridge.js"
)

//go:embed assets/index.html assets/bridge.js
var embeddedAssets embed.FS

var assetsFS fs.FS

func init() {
	sub, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		assetsFS = embeddedAssets
		return
	}
	assetsFS = sub
}

// serveAsset writes an embedded asset, passing it through transform first
// when one is given.
func serveAsset(w http.ResponseWriter, r *http.Request, name, contentType string, transform func([]byte) []byte) {
	data, err := fs.ReadFile(assetsFS, name)
	if err != nil {
		http.Error(w, name+" not found", http.StatusInternalServerError)
		return
	}
	if transform != nil {
		data = transform(data)
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}
