package storage

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// Handler serves objects by key, taken from the request path with any
// leading slash removed. Mount it behind http.StripPrefix.
func Handler(s Storage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/")
		rc, err := s.Open(r.Context(), key)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidKey) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			slog.Error("open media object failed", "key", key, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		defer rc.Close()

		contentType := mime.TypeByExtension(path.Ext(key))
		rs, seekable := rc.(io.ReadSeeker)
		if contentType == "" && seekable {
			if m, err := mimetype.DetectReader(rs); err == nil {
				contentType = m.String()
			}
			if _, err := rs.Seek(0, io.SeekStart); err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)

		if seekable {
			http.ServeContent(w, r, path.Base(key), time.Time{}, rs)
			return
		}
		if _, err := io.Copy(w, rc); err != nil {
			slog.Warn("stream media object failed", "key", key, "error", err)
		}
	})
}
