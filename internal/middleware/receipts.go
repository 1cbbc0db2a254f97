package middleware

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ReceiptFileServer serves rendered settlement receipts from the receipts
// directory as plain text. Paths are cleaned and pinned to the directory;
// anything else is a 404.
func ReceiptFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Clean(r.URL.Path)
		if !strings.HasSuffix(name, ".txt") {
			http.NotFound(w, r)
			return
		}

		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		http.ServeFile(w, r, path)
	})
}
