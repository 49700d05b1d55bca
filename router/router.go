package router

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/luis-arellano/simple-google-docs/middleware"
	"github.com/luis-arellano/simple-google-docs/socket"
)

// Setup wires the websocket endpoint and the two read-only HTTP routes:
// a health check and a plain-HTTP fallback for fetching a document's
// in-memory snapshot.
func Setup(hub *socket.Hub, allowedOrigin string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := hub.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":           "ok",
			"timestamp":        time.Now().Format(time.RFC3339),
			"active_documents": stats.ActiveDocuments,
			"total_users":      stats.TotalUsers,
		})
	})

	mux.HandleFunc("/documents/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		docID := strings.TrimPrefix(r.URL.Path, "/documents/")
		if docID == "" || strings.Contains(docID, "/") {
			http.NotFound(w, r)
			return
		}

		snap, ok := hub.Document(docID)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "Document not found"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":            docID,
			"content":       snap.Content,
			"title":         snap.Title,
			"last_modified": snap.LastModified,
		})
	})

	return middleware.CORSMiddleware(allowedOrigin, mux)
}
