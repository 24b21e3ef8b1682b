package handler

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/cyplan/internal/cyplan/biz"
	"github.com/kart-io/cyplan/internal/cyplan/store"
	"github.com/kart-io/cyplan/internal/pkg/httputils"
	errno "github.com/kart-io/cyplan/pkg/utils/errors"
	"github.com/kart-io/cyplan/pkg/utils/validator"
)

// DefaultLibrary receives uploads that name no library.
const DefaultLibrary = "default"

// KnowledgeSearchRequest is the body of POST /api/knowledge/search.
type KnowledgeSearchRequest struct {
	Query string `json:"query" validate:"required,notblank"`
}

// RiskAssessRequest is the body of POST /api/risk/assess. Either threats or
// keywords must be given.
type RiskAssessRequest struct {
	Threats  []biz.RiskInput `json:"threats,omitempty"`
	Keywords string          `json:"keywords,omitempty"`
}

// DocumentSearchRequest is the body of POST /api/documents/search.
type DocumentSearchRequest struct {
	Query    string `json:"query" validate:"required,notblank"`
	NResults int    `json:"n_results" validate:"gte=0,lte=50"`
	Library  string `json:"library,omitempty" validate:"omitempty,library"`
}

// IngestDirectoryRequest is the body of POST /api/ingest/directory.
type IngestDirectoryRequest struct {
	DirectoryPath string `json:"directory_path" validate:"required,notblank"`
	LibraryName   string `json:"library_name,omitempty" validate:"omitempty,library"`
}

// UploadConfig bounds and places multipart uploads.
type UploadConfig struct {
	// MaxSize bounds an upload body in bytes.
	MaxSize int64
	// Dir receives uploads until they are indexed. Empty uses the OS temp dir.
	Dir string
}

// KnowledgeHandler serves knowledge retrieval, risk scoring and the
// document library. index and ingestor are nil when no embedding provider
// is configured.
type KnowledgeHandler struct {
	knowledge *biz.KnowledgeEngine
	risk      *biz.RiskScorer
	index     store.VectorIndex
	ingestor  *biz.Ingestor
	upload    UploadConfig
}

// NewKnowledgeHandler creates a KnowledgeHandler. ingestor may be nil.
func NewKnowledgeHandler(knowledge *biz.KnowledgeEngine, risk *biz.RiskScorer, ingestor *biz.Ingestor, upload UploadConfig) *KnowledgeHandler {
	h := &KnowledgeHandler{knowledge: knowledge, risk: risk, ingestor: ingestor, upload: upload}
	if ingestor != nil {
		h.index = ingestor.Index()
	}
	if h.upload.MaxSize <= 0 {
		h.upload.MaxSize = 32 << 20
	}
	return h
}

func bindValid(c *gin.Context, v any) error {
	if err := bindOptional(c, v); err != nil {
		return err
	}
	if err := validator.Struct(v); err != nil {
		return errno.ErrValidationFailed.WithMessage(err.Error())
	}
	return nil
}

func (h *KnowledgeHandler) documents() error {
	if h.ingestor == nil {
		return errno.ErrEmbeddingNotConfigured
	}
	return nil
}

// Search handles POST /api/knowledge/search.
func (h *KnowledgeHandler) Search(c *gin.Context) {
	var req KnowledgeSearchRequest
	if err := bindValid(c, &req); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	result, err := h.knowledge.SearchKnowledge(c.Request.Context(), req.Query)
	httputils.WriteResponse(c, err, gin.H{"query": req.Query, "results": result})
}

// All handles GET /api/knowledge.
func (h *KnowledgeHandler) All(c *gin.Context) {
	result, err := h.knowledge.AllKnowledge(c.Request.Context())
	httputils.WriteResponse(c, err, gin.H{"knowledge": result})
}

// Framework handles GET /api/frameworks/:id.
func (h *KnowledgeHandler) Framework(c *gin.Context) {
	info, err := h.knowledge.FrameworkInfo(c.Request.Context(), c.Param("id"))
	httputils.WriteResponse(c, err, gin.H{"framework_id": c.Param("id"), "info": info})
}

// AssessRisk handles POST /api/risk/assess.
func (h *KnowledgeHandler) AssessRisk(c *gin.Context) {
	var req RiskAssessRequest
	if err := bindOptional(c, &req); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}

	ctx := c.Request.Context()
	switch {
	case len(req.Threats) > 0:
		results, err := h.risk.Assess(ctx, req.Threats)
		httputils.WriteResponse(c, err, gin.H{"assessments": results})
	case req.Keywords != "":
		report, err := h.risk.AssessKeywords(ctx, req.Keywords)
		httputils.WriteResponse(c, err, gin.H{"report": report})
	default:
		httputils.WriteResponse(c, errno.ErrInvalidRiskInput.WithMessage("threats or keywords are required"), nil)
	}
}

// Upload handles POST /api/ingest with a multipart "file" and an optional
// "library_name" form field.
func (h *KnowledgeHandler) Upload(c *gin.Context) {
	if err := h.documents(); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.upload.MaxSize)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputils.WriteResponse(c, errno.ErrRequestTooLarge, nil)
			return
		}
		httputils.WriteResponse(c, errno.ErrInvalidIngestInput.WithMessage("No file provided"), nil)
		return
	}
	name := filepath.Base(file.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		httputils.WriteResponse(c, errno.ErrInvalidIngestInput.WithMessage("No file selected"), nil)
		return
	}
	library := c.PostForm("library_name")
	if library == "" {
		library = DefaultLibrary
	}

	dir, err := os.MkdirTemp(h.upload.Dir, "cyplan-upload-*")
	if err != nil {
		httputils.WriteResponse(c, errno.ErrInternal.WithCause(err), nil)
		return
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warnw("remove upload dir failed", "dir", dir, "error", err)
		}
	}()

	path := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(file, path); err != nil {
		httputils.WriteResponse(c, errno.ErrInternal.WithCause(err), nil)
		return
	}
	result, err := h.ingestor.IngestFile(c.Request.Context(), library, path)
	httputils.WriteResponse(c, err, result)
}

// IngestDirectory handles POST /api/ingest/directory for a directory on
// the server host.
func (h *KnowledgeHandler) IngestDirectory(c *gin.Context) {
	if err := h.documents(); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	var req IngestDirectoryRequest
	if err := bindValid(c, &req); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	if req.LibraryName == "" {
		req.LibraryName = DefaultLibrary
	}
	result, err := h.ingestor.IngestDirectory(c.Request.Context(), req.LibraryName, req.DirectoryPath)
	httputils.WriteResponse(c, err, result)
}

// Libraries handles GET /api/libraries.
func (h *KnowledgeHandler) Libraries(c *gin.Context) {
	if err := h.documents(); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	libs, err := h.index.ListLibraries(c.Request.Context())
	if libs == nil {
		libs = []string{}
	}
	httputils.WriteResponse(c, err, gin.H{"libraries": libs, "count": len(libs)})
}

// DeleteLibrary handles DELETE /api/libraries/:name.
func (h *KnowledgeHandler) DeleteLibrary(c *gin.Context) {
	if err := h.documents(); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	name := c.Param("name")
	found, err := h.index.DeleteLibrary(c.Request.Context(), name)
	if err == nil && !found {
		err = errno.ErrLibraryNotFound.WithMessagef("Library %q not found", name)
	}
	if found && h.knowledge != nil {
		h.knowledge.InvalidateContext(c.Request.Context())
	}
	httputils.WriteResponse(c, err, gin.H{"library": name, "deleted": found})
}

// SearchDocuments handles POST /api/documents/search.
func (h *KnowledgeHandler) SearchDocuments(c *gin.Context) {
	if err := h.documents(); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	var req DocumentSearchRequest
	if err := bindValid(c, &req); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	if req.NResults == 0 {
		req.NResults = 5
	}
	hits, err := h.index.Search(c.Request.Context(), req.Query, req.NResults, req.Library)
	if hits == nil {
		hits = []store.Hit{}
	}
	httputils.WriteResponse(c, err, gin.H{"query": req.Query, "results": hits, "count": len(hits)})
}
