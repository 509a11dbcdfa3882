package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/camden-git/faceattend/media"
)

// AssetServer creates a handler serving stored artifacts (uploads, annotated
// detections) from one subdirectory of the media store. routePrefix is the
// mounted route without the trailing wildcard, e.g. "/api/detected/".
func AssetServer(store media.Store, subDir, routePrefix string) http.HandlerFunc {
	subDir = path.Clean("/" + subDir)[1:]
	log.Printf("Serving assets for '%s*' from store directory: %s", routePrefix, subDir)

	return func(w http.ResponseWriter, r *http.Request) {
		if subDir == "" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		relativePath := strings.TrimPrefix(r.URL.Path, routePrefix)
		if relativePath == "" || strings.Contains(relativePath, "..") {
			http.Error(w, "Invalid asset path", http.StatusBadRequest)
			return
		}

		assetPath := path.Join(subDir, relativePath)
		if !strings.HasPrefix(assetPath, subDir+"/") {
			http.Error(w, "Forbidden", http.StatusForbidden)
			log.Printf("SECURITY: Attempted asset access outside designated directory: Request='%s', Resolved='%s', Allowed Base='%s'",
				r.URL.Path, assetPath, subDir)
			return
		}

		file, info, err := store.Get(assetPath)
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			log.Printf("Error opening asset %s: %v", assetPath, err)
			return
		}
		defer file.Close()
		if info.IsDir() {
			http.NotFound(w, r)
			return
		}

		cacheDuration := time.Hour
		w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(cacheDuration.Seconds())))
		if seeker, ok := file.(io.ReadSeeker); ok {
			http.ServeContent(w, r, info.Name(), info.ModTime(), seeker)
			return
		}
		w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
		if _, err := io.Copy(w, file); err != nil {
			log.Printf("Error writing asset %s: %v", assetPath, err)
		}
	}
}
