package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/photopipeline/logger"
	"github.com/camden-git/photopipeline/media"
)

const assetCacheDuration = 24 * time.Hour

// AssetServer serves derived assets out of the media store. The wildcard
// part of the route is the store relative path, the same value kept in the
// photo path columns, e.g. /api/media/display/<uuid>.avif.
func AssetServer(store media.Store, log *logger.Logger) http.HandlerFunc {
	log = log.WithComponent("handlers.assets")
	return func(w http.ResponseWriter, r *http.Request) {
		relativePath := chi.URLParam(r, "*")
		if relativePath == "" || strings.Contains(relativePath, "..") || strings.HasPrefix(relativePath, "/") {
			WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "invalid asset path")
			return
		}

		fullPath, err := store.GetFullPath(relativePath)
		if err != nil {
			log.Warn("rejected asset path", "request", r.URL.Path, "error", err)
			WriteAPIError(w, http.StatusForbidden, "forbidden", "asset path not allowed")
			return
		}

		rc, info, err := store.Get(relativePath)
		if errors.Is(err, os.ErrNotExist) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "asset not found")
			return
		} else if err != nil {
			log.Error("error opening asset file", "path", fullPath, "error", err)
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "could not read asset")
			return
		}
		defer rc.Close()

		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(assetCacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(assetCacheDuration).Format(http.TimeFormat))
		if seeker, ok := rc.(io.ReadSeeker); ok {
			http.ServeContent(w, r, info.Name(), info.ModTime(), seeker)
			return
		}
		w.Header().Set("Content-Type", mime.TypeByExtension(path.Ext(info.Name())))
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
		if _, err := io.Copy(w, rc); err != nil {
			log.Warn("failed to stream asset", "path", relativePath, "error", err)
		}
	}
}
