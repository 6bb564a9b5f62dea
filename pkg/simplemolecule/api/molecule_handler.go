package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-molecule/pkg/simplemolecule"
)

// DefaultMaxUploadBytes caps the size of one uploaded file.
const DefaultMaxUploadBytes = 64 << 20

// MoleculeHandler handles HTTP requests for cached molecular content
type MoleculeHandler struct {
	store          *simplemolecule.ContentStore
	resolver       *simplemolecule.Resolver
	defaultFolder  string
	maxUploadBytes int64
	logger         *slog.Logger
}

// HandlerOption configures a MoleculeHandler
type HandlerOption func(*MoleculeHandler)

// WithDefaultFolder sets the folder recorded for uploads without one
func WithDefaultFolder(folder string) HandlerOption {
	return func(h *MoleculeHandler) {
		if folder != "" {
			h.defaultFolder = folder
		}
	}
}

// WithMaxUploadBytes caps the upload size
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *MoleculeHandler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *MoleculeHandler) {
		h.logger = logger
	}
}

// NewMoleculeHandler creates a new molecule handler
func NewMoleculeHandler(store *simplemolecule.ContentStore, resolver *simplemolecule.Resolver, opts ...HandlerOption) *MoleculeHandler {
	h := &MoleculeHandler{
		store:          store,
		resolver:       resolver,
		defaultFolder:  simplemolecule.DefaultFolder,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the routes for molecules
func (h *MoleculeHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/upload", h.Upload)
	r.Post("/resolve", h.Resolve)
	r.Get("/status", h.Status)
	r.Get("/sessions", h.Sessions)
	r.Get("/search", h.Search)
	r.Delete("/", h.ClearAll)

	r.Get("/{identifier}", h.GetMolecule)
	r.Delete("/{identifier}", h.ClearMolecule)
	r.Post("/{identifier}/edit", h.EditMolecule)

	return r
}

// UploadResponse is the response body of an upload
type UploadResponse struct {
	Success    bool                  `json:"success"`
	Identifier string                `json:"identifier"`
	SessionID  string                `json:"session_id,omitempty"`
	NodeID     string                `json:"node_id,omitempty"`
	Filename   string                `json:"filename"`
	Folder     string                `json:"folder"`
	Format     simplemolecule.Format `json:"format"`
	FormatName string                `json:"format_name"`
	Stats      simplemolecule.Stats  `json:"stats"`
}

// Upload stores a multipart file under an identifier
func (h *MoleculeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.logger.Warn("Upload exceeds body limit", "limit", maxErr.Limit)
			http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Error("Invalid upload", "error", err)
		http.Error(w, "Invalid multipart upload", http.StatusBadRequest)
		return
	}

	identifier := strings.TrimSpace(r.FormValue("identifier"))
	if identifier == "" {
		// older clients send the full identifier as node_id
		identifier = strings.TrimSpace(r.FormValue("node_id"))
	}
	if identifier == "" {
		http.Error(w, "identifier is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := strings.TrimSpace(r.FormValue("custom_filename"))
	if filename == "" {
		filename = header.Filename
	}
	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.logger.Error("Failed to read upload", "identifier", identifier, "error", err)
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	content, err := DecodeText(data)
	if err != nil {
		h.logger.Error("Upload is not text", "identifier", identifier, "filename", filename, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	folder := strings.TrimSpace(r.FormValue("folder"))
	if folder == "" {
		folder = h.defaultFolder
	}

	rec, err := h.store.Store(r.Context(), simplemolecule.StoreRequest{
		Identifier: identifier,
		Filename:   filename,
		Folder:     folder,
		Content:    content,
		Origin:     simplemolecule.OriginUpload,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, UploadResponse{
		Success:    true,
		Identifier: rec.Identifier,
		SessionID:  rec.SessionID,
		NodeID:     rec.NodeID,
		Filename:   rec.Filename,
		Folder:     rec.Folder,
		Format:     rec.Format,
		FormatName: rec.FormatName,
		Stats:      rec.Stats,
	})
}

// GetMolecule returns one record including its content
func (h *MoleculeHandler) GetMolecule(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")

	rec, err := h.store.Get(r.Context(), identifier)
	if err != nil {
		h.writeError(w, err)
		return
	}
	render.JSON(w, r, rec)
}

// Status returns the store summary
func (h *MoleculeHandler) Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.store.Status())
}

// SessionsResponse is the response body of the sessions listing
type SessionsResponse struct {
	Sessions []simplemolecule.SessionObservation `json:"sessions"`
}

// Sessions lists the sessions present in the store
func (h *MoleculeHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, SessionsResponse{Sessions: h.store.Sessions()})
}

// SearchResponse is the response body of a search
type SearchResponse struct {
	Query   string                         `json:"query"`
	Count   int                            `json:"count"`
	Results []simplemolecule.RecordSummary `json:"results"`
}

// Search matches records by filename, format or identifier
func (h *MoleculeHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	results := h.store.Search(query)
	render.JSON(w, r, SearchResponse{Query: query, Count: len(results), Results: results})
}

// ClearMolecule removes one record
func (h *MoleculeHandler) ClearMolecule(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")

	if !h.store.Clear(r.Context(), identifier) {
		http.Error(w, "Molecule not found", http.StatusNotFound)
		return
	}
	render.JSON(w, r, map[string]interface{}{"cleared": 1, "identifier": identifier})
}

// ClearAll removes every record
func (h *MoleculeHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	n := h.store.ClearAll(r.Context())
	render.JSON(w, r, map[string]interface{}{"cleared": n})
}

// EditMolecule applies an edit to one record
func (h *MoleculeHandler) EditMolecule(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")

	var req simplemolecule.EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, "edit_type is required", http.StatusBadRequest)
		return
	}

	rec, err := h.store.Edit(r.Context(), identifier, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	render.JSON(w, r, rec)
}

// ResolveRequest is the request body for resolving an input
type ResolveRequest struct {
	Input        string `json:"input"`
	Identifier   string `json:"identifier"`
	SessionID    string `json:"session_id"`
	NodeID       string `json:"node_id"`
	Folder       string `json:"folder"`
	SkipFallback bool   `json:"skip_fallback"`
	InferSession bool   `json:"infer_session"`
}

// Resolve turns a filename or literal text into content. A resolution that
// found nothing is still a 200 with metadata.success=false.
func (h *MoleculeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		http.Error(w, "input is required", http.StatusBadRequest)
		return
	}

	identifier, err := h.identifierFor(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res := h.resolver.Resolve(r.Context(), simplemolecule.ResolveRequest{
		Input:        req.Input,
		Identifier:   identifier,
		Folder:       req.Folder,
		SkipFallback: req.SkipFallback,
	})
	render.JSON(w, r, res)
}

func (h *MoleculeHandler) identifierFor(req ResolveRequest) (string, error) {
	if id := strings.TrimSpace(req.Identifier); id != "" {
		return id, nil
	}
	if req.SessionID != "" {
		id, err := simplemolecule.NewIdentifier(req.SessionID, req.NodeID)
		if err != nil {
			return "", err
		}
		return id.String(), nil
	}
	if req.NodeID != "" && req.InferSession {
		id := simplemolecule.DeriveIdentifier(req.NodeID, h.store.Sessions())
		h.logger.Warn("Inferred session for node", "node_id", req.NodeID, "identifier", id)
		return id, nil
	}
	return "", errors.New("identifier or session_id and node_id are required")
}

func (h *MoleculeHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, simplemolecule.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, simplemolecule.ErrEditNoChange):
		return http.StatusConflict
	case errors.Is(err, simplemolecule.ErrValidation),
		errors.Is(err, simplemolecule.ErrDecode),
		errors.Is(err, simplemolecule.ErrUnsupportedEdit):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
