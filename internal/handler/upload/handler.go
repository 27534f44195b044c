package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-concierge/backend/internal/model/agent"
	"github.com/zhouzirui/z-concierge/backend/internal/model/record"
	"github.com/zhouzirui/z-concierge/backend/internal/service/retrieval"
	"github.com/zhouzirui/z-concierge/backend/pkg/utils"
)

// MaxUploadBytes bounds a single upload request.
const MaxUploadBytes = 32 << 20

// Directory installs uploaded record tables.
type Directory interface {
	LoadRecords(r io.Reader) (*record.Table, error)
	LoadTransactions(r io.Reader) (*record.Transactions, error)
}

// Library replaces an agent's document index.
type Library interface {
	Load(ctx context.Context, id agent.ID, documents []string) (int, error)
}

// Observer counts uploads.
type Observer interface {
	Upload(kind string, success bool)
}

type noopObserver struct{}

func (noopObserver) Upload(string, bool) {}

// Handler 处理运营方上传的用户表、交易表与知识文档
type Handler struct {
	directory Directory
	library   Library
	observer  Observer
}

// New 创建上传处理器
func New(directory Directory, library Library, observer Observer) *Handler {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Handler{directory: directory, library: library, observer: observer}
}

// RegisterRoutes 注册上传相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/uploads/users", h.handleUsers)
	r.Post("/uploads/transactions", h.handleTransactions)
	r.Post("/uploads/documents/{agent}", h.handleDocuments)
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	body, err := openUpload(w, r)
	if err != nil {
		h.fail(w, "users", http.StatusBadRequest, err)
		return
	}
	defer body.Close()

	table, err := h.directory.LoadRecords(body)
	if err != nil {
		h.fail(w, "users", http.StatusBadRequest, err)
		return
	}
	h.observer.Upload("users", true)
	utils.RespondJSON(w, http.StatusOK, map[string]int{"rows": table.Len()})
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	body, err := openUpload(w, r)
	if err != nil {
		h.fail(w, "transactions", http.StatusBadRequest, err)
		return
	}
	defer body.Close()

	tx, err := h.directory.LoadTransactions(body)
	if err != nil {
		h.fail(w, "transactions", http.StatusBadRequest, err)
		return
	}
	h.observer.Upload("transactions", true)
	utils.RespondJSON(w, http.StatusOK, map[string]int{"rows": tx.Len()})
}

func (h *Handler) handleDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := agent.Parse(chi.URLParam(r, "agent"))
	if !ok {
		h.fail(w, "documents", http.StatusNotFound, fmt.Errorf("unknown agent %q", chi.URLParam(r, "agent")))
		return
	}

	docs, err := readDocuments(w, r)
	if err != nil {
		h.fail(w, "documents", http.StatusBadRequest, err)
		return
	}

	chunks, err := h.library.Load(r.Context(), id, docs)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, retrieval.ErrNoDocuments) {
			status = http.StatusBadRequest
		}
		h.fail(w, "documents", status, err)
		return
	}
	h.observer.Upload("documents", true)
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"agent":     id,
		"documents": len(docs),
		"chunks":    chunks,
	})
}

func (h *Handler) fail(w http.ResponseWriter, kind string, status int, err error) {
	log.Printf("[upload] %s rejected: %v", kind, err)
	h.observer.Upload(kind, false)
	utils.RespondError(w, status, err.Error())
}

// openUpload returns the first file of a multipart form, or the raw body for
// text/csv uploads.
func openUpload(w http.ResponseWriter, r *http.Request) (io.ReadCloser, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if !isMultipart(r) {
		return r.Body, nil
	}
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	for _, headers := range r.MultipartForm.File {
		if len(headers) > 0 {
			return headers[0].Open()
		}
	}
	return nil, errors.New("no file in upload")
}

func readDocuments(w http.ResponseWriter, r *http.Request) ([]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if !isMultipart(r) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		return []string{string(data)}, nil
	}

	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	var docs []string
	for _, headers := range r.MultipartForm.File {
		for _, header := range headers {
			text, err := readPart(header)
			if err != nil {
				return nil, err
			}
			docs = append(docs, text)
		}
	}
	return docs, nil
}

func readPart(header *multipart.FileHeader) (string, error) {
	f, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", header.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", header.Filename, err)
	}
	return string(data), nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}
