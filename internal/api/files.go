package api

import (
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/mirrorlens/mirrorlens/internal/auth"
	"github.com/mirrorlens/mirrorlens/internal/logging"
	"github.com/mirrorlens/mirrorlens/internal/remote"
	"github.com/mirrorlens/mirrorlens/internal/search"
)

// handleBrowse lists one remote folder's children, filtered and paginated.
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	token := auth.GetToken(r.Context())
	q := r.URL.Query()

	filter, err := search.ParseFilter(q.Get("filter"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := 1
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		page = n
	}

	var items []remote.File
	pager := s.drive.ListFolder(q.Get("folder"), token)
	for pager.More() {
		files, err := pager.Next(r.Context())
		if err != nil {
			s.sendError(w, http.StatusBadGateway, "listing failed: "+err.Error())
			return
		}
		for _, f := range files {
			if f.IsFolder || filter.Matches(f.Name) {
				items = append(items, f)
			}
		}
	}

	pageItems, totalPages := pageOf(items, page, s.pageSize)
	s.sendJSON(w, http.StatusOK, map[string]any{
		"page":        page,
		"total_pages": totalPages,
		"total":       len(items),
		"items":       pageItems,
	})
}

// handleContent resolves a content reference: the mirrored local file when
// present, otherwise a remote download.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	token := auth.GetToken(r.Context())
	id := r.PathValue("id")

	unlock := s.store.Lock(claims.UserID)
	cache, err := s.store.Load(claims.UserID)
	unlock()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "cache load failed")
		return
	}

	if name, ok := cache.Names[id]; ok {
		path := s.store.FilePath(claims.UserID, name)
		if f, err := os.Open(path); err == nil {
			defer f.Close()
			if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
				w.Header().Set("Content-Type", ct)
			}
			io.Copy(w, f)
			return
		}
	}

	// Not mirrored yet; fall back to the remote store.
	data, err := s.drive.DownloadFile(r.Context(), id, token)
	if err != nil {
		s.sendError(w, http.StatusBadGateway, "failed to fetch content")
		return
	}
	w.Write(data)
}

// handleUpload proxies an upload to the remote store and re-syncs so the new
// file becomes searchable.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	token := auth.GetToken(r.Context())

	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	folderID := r.FormValue("folder_id")
	if err := s.drive.UploadFile(r.Context(), folderID, header.Filename, file, token); err != nil {
		s.sendError(w, http.StatusBadGateway, "upload failed: "+err.Error())
		return
	}

	if _, _, err := s.syncer.Sync(r.Context(), claims.UserID, token); err != nil {
		logging.Warn("post-upload sync failed", zap.String("user", claims.UserID), zap.Error(err))
	}

	s.sendJSON(w, http.StatusCreated, map[string]string{"name": header.Filename})
}

// handleDelete proxies a delete to the remote store and re-syncs so the
// entry is evicted from the mirror.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	token := auth.GetToken(r.Context())
	id := r.PathValue("id")

	if err := s.drive.DeleteFile(r.Context(), id, token); err != nil {
		s.sendError(w, http.StatusBadGateway, "delete failed: "+err.Error())
		return
	}

	if _, _, err := s.syncer.Sync(r.Context(), claims.UserID, token); err != nil {
		logging.Warn("post-delete sync failed", zap.String("user", claims.UserID), zap.Error(err))
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
