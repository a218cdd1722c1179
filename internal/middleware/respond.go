package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// isOpsPath reports endpoints that skip auth and rate limiting
func isOpsPath(path string) bool {
	return path == "/health" || path == "/metrics" || strings.HasPrefix(path, "/healthz/")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
