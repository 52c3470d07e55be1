// Package www serves static files from a directory.  Every file has an entity tag derived from its content that is
// recomputed when the file's size or modification time changes, so a rebuilt asset is never served as not modified.
package www

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/swdunlop/html-go/hog"
)

// Handler returns a http.Handler serving files under dir.  Requests for a directory serve its index.html.
func Handler(dir string) *Files {
	return &Files{dir: dir, tags: make(map[string]entityTag)}
}

// Files is a http.Handler for a directory of static files.
type Files struct {
	dir string

	mu   sync.Mutex
	tags map[string]entityTag
}

type entityTag struct {
	size    int64
	modTime time.Time
	tag     string
}

// ServeHTTP implements http.Handler.
func (fl *Files) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set(`Allow`, `GET, HEAD`)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	name := path.Clean(`/` + r.URL.Path)
	file := filepath.Join(fl.dir, filepath.FromSlash(name))
	info, err := os.Stat(file)
	if err == nil && info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, `/`) {
			http.Redirect(w, r, r.URL.Path+`/`, http.StatusMovedPermanently)
			return
		}
		file = filepath.Join(file, `index.html`)
		info, err = os.Stat(file)
	}
	switch {
	case errors.Is(err, os.ErrNotExist), err == nil && info.IsDir():
		http.NotFound(w, r)
		return
	case err != nil:
		hog.For(r).Error().Err(err).Str(`path`, file).Msg(`failed to stat file`)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	f, err := os.Open(file)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	tag, err := fl.tag(file, info, f)
	if err != nil {
		hog.For(r).Error().Err(err).Str(`path`, file).Msg(`failed to read file`)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set(`ETag`, tag)
	w.Header().Set(`Cache-Control`, `no-cache`)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// tag returns the entity tag for a file, hashing it if it has changed since it was last seen.  The file is left at
// its start.
func (fl *Files) tag(name string, info os.FileInfo, f io.ReadSeeker) (string, error) {
	fl.mu.Lock()
	et, ok := fl.tags[name]
	fl.mu.Unlock()
	if ok && et.size == info.Size() && et.modTime.Equal(info.ModTime()) {
		return et.tag, nil
	}

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return ``, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return ``, err
	}
	et = entityTag{
		size:    info.Size(),
		modTime: info.ModTime(),
		tag:     `"` + strconv.FormatUint(h.Sum64(), 36) + `"`,
	}
	fl.mu.Lock()
	fl.tags[name] = et
	fl.mu.Unlock()
	return et.tag, nil
}
