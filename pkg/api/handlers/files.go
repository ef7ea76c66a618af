package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avolokita/fileholder/pkg/metrics"
	"github.com/avolokita/fileholder/pkg/models"
	"github.com/avolokita/fileholder/pkg/service"
	"github.com/avolokita/fileholder/pkg/uow"
)

// maxUploadMemory caps the multipart form buffer. Requests carry whole
// blobs in memory; larger parts spill to temporary files which are read
// back fully anyway.
const maxUploadMemory = 32 << 20

// FileHandler serves the /files endpoints. Every request runs inside its
// own unit of work; the handler commits on success and relies on the
// deferred rollback otherwise.
type FileHandler struct {
	factory *uow.Factory
	metrics *metrics.Metrics
}

// NewFileHandler creates a FileHandler. metrics may be nil.
func NewFileHandler(factory *uow.Factory, m *metrics.Metrics) *FileHandler {
	return &FileHandler{factory: factory, metrics: m}
}

// writeError records retryable lock contention before mapping the error to
// its problem response.
func (h *FileHandler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrLockTimeout) {
		h.metrics.RecordLockTimeout()
	}
	WriteError(w, err)
}

// FileRead is the JSON representation of a metadata record.
type FileRead struct {
	ID        string     `json:"id"`
	Filename  string     `json:"filename"`
	Extension string     `json:"file_extension"`
	Path      string     `json:"path"`
	Size      int64      `json:"size"`
	Comment   *string    `json:"comment"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

func fileReadFrom(meta *models.FileMeta) FileRead {
	return FileRead{
		ID:        meta.ID,
		Filename:  meta.Filename,
		Extension: meta.Extension,
		Path:      meta.Path,
		Size:      meta.Size,
		Comment:   meta.Comment,
		CreatedAt: meta.CreatedAt.UTC(),
		UpdatedAt: meta.UpdatedAt,
	}
}

func fileReadsFrom(metas []*models.FileMeta) []FileRead {
	out := make([]FileRead, len(metas))
	for i, m := range metas {
		out[i] = fileReadFrom(m)
	}
	return out
}

// Create handles POST /files: multipart form with filename, file_extension,
// path, optional comment and the binary "file" part.
func (h *FileHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		BadRequest(w, "Invalid multipart form: "+err.Error())
		return
	}

	filename := r.FormValue("filename")
	extension := r.FormValue("file_extension")
	path := r.FormValue("path")

	var comment *string
	if values, ok := r.MultipartForm.Value["comment"]; ok && len(values) > 0 {
		comment = &values[0]
	}

	part, _, err := r.FormFile("file")
	if err != nil {
		BadRequest(w, "Missing file part")
		return
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		BadRequest(w, "Failed to read file part: "+err.Error())
		return
	}

	u, err := h.factory.Begin(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer u.Rollback()

	meta, err := service.New(u).CreateFile(data, service.CreateRequest{
		Filename:  filename,
		Extension: extension,
		Path:      path,
		Comment:   comment,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := u.Commit(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}

	h.metrics.RecordFileCreated()
	WriteJSONOK(w, fileReadFrom(meta))
}

// List handles GET /files with optional limit/offset query parameters.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit")
	offset := queryInt(r, "offset")

	u, err := h.factory.Begin(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer u.Rollback()

	metas, err := service.New(u).ListFiles(limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := u.Commit(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	WriteJSONOK(w, fileReadsFrom(metas))
}

// Search handles GET /files/search?file_path=<prefix>. The prefix is
// normalized server-side to end with "/".
func (h *FileHandler) Search(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("file_path")

	u, err := h.factory.Begin(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer u.Rollback()

	metas, err := service.New(u).SearchByPathPrefix(prefix)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := u.Commit(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	WriteJSONOK(w, fileReadsFrom(metas))
}

// GetMeta handles GET /files/{id}/meta.
func (h *FileHandler) GetMeta(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	u, err := h.factory.Begin(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer u.Rollback()

	meta, err := service.New(u).GetFileMeta(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := u.Commit(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	WriteJSONOK(w, fileReadFrom(meta))
}

// GetMetaByTriple handles GET /files/meta/by-path with path, filename and
// file_extension query parameters.
func (h *FileHandler) GetMetaByTriple(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	filename := q.Get("filename")
	extension := q.Get("file_extension")

	u, err := h.factory.Begin(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer u.Rollback()

	meta, err := service.New(u).GetFileMetaByTriple(path, filename, extension)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := u.Commit(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	WriteJSONOK(w, fileReadFrom(meta))
}

// Download handles GET /files/{id}, streaming the blob bytes as an
// octet-stream with a Content-Disposition built from the logical filename.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	u, err := h.factory.Begin(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer u.Rollback()

	meta, data, err := service.New(u).GetFileBytes(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := u.Commit(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}

	name := meta.Filename
	if meta.Extension != "" {
		name += "." + meta.Extension
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// Delete handles DELETE /files/{id}.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	u, err := h.factory.Begin(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer u.Rollback()

	if err := service.New(u).DeleteFile(id); err != nil {
		h.writeError(w, err)
		return
	}
	if err := u.Commit(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}

	h.metrics.RecordFileDeleted()
	WriteJSONOK(w, map[string]string{"status": "deleted", "file_id": id})
}

// Update handles PUT and PATCH /files/{id} with a FileUpdate JSON body.
func (h *FileHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var changes models.FileUpdate
	if !decodeJSONBody(w, r, &changes) {
		return
	}

	u, err := h.factory.Begin(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer u.Rollback()

	meta, err := service.New(u).UpdateFileMeta(id, changes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := u.Commit(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	WriteJSONOK(w, fileReadFrom(meta))
}

// Synchronise handles POST /files/synchronise, running a reconciliation
// pass inside one unit of work.
func (h *FileHandler) Synchronise(w http.ResponseWriter, r *http.Request) {
	u, err := h.factory.Begin(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer u.Rollback()

	if err := service.New(u).SyncStorageWithDB(); err != nil {
		h.writeError(w, err)
		return
	}
	if err := u.Commit(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}

	h.metrics.RecordSyncRun()
	WriteJSONOK(w, map[string]string{"status": "synchronised"})
}

// queryInt parses an optional non-negative integer query parameter,
// returning 0 when absent or malformed.
func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Health handles GET /health.
func Health(w http.ResponseWriter, _ *http.Request) {
	WriteJSONOK(w, map[string]string{"status": "ok"})
}
