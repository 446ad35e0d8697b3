//go:build !embed

package frontend

import "net/http"

// Handler returns nil when the dashboard is not compiled in; the server
// then falls back to the frontend directory on disk.
func Handler() http.Handler {
	return nil
}
