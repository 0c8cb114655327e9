package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BorisDmv/post-store/internal/db"
	"github.com/BorisDmv/post-store/internal/models"
)

const maxBodyBytes = 1 << 20

type PostsHandler struct {
	store  db.PostStore
	logger *slog.Logger
}

type PostsResponse struct {
	Data     interface{} `json:"data"`
	Page     int         `json:"page"`
	Limit    int         `json:"limit"`
	Total    int         `json:"total"`
	LastPage int         `json:"last_page"`
	Query    string      `json:"query,omitempty"`
}

// PostRequest is the create/update body. It is accepted as JSON or as a
// form; tags are comma-separated.
type PostRequest struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Status  string  `json:"status"`
	Author  string  `json:"author"`
	Tags    tagList `json:"tags"`
}

// tagList decodes either a comma-separated string or an array of strings.
type tagList string

func (t *tagList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = tagList(s)
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return errors.New("tags must be a string or an array of strings")
	}
	*t = tagList(strings.Join(items, ","))
	return nil
}

func (req PostRequest) input() models.PostInput {
	return models.PostInput{
		Title:    req.Title,
		Content:  req.Content,
		Status:   models.Status(req.Status),
		Metadata: models.NewMetadata(req.Author, models.SplitTags(string(req.Tags))),
	}
}

// EditForm is the form-shaped view of a stored post.
type EditForm struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status"`
	Author  string `json:"author"`
	Tags    string `json:"tags"`
}

type EditResponse struct {
	Post     *models.Post    `json:"post"`
	Form     EditForm        `json:"form"`
	Statuses []models.Status `json:"statuses"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func NewPostsHandler(store db.PostStore, logger *slog.Logger) *PostsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostsHandler{store: store, logger: logger}
}

// Routes mounts the post endpoints on r.
func (h *PostsHandler) Routes(r chi.Router, readLimit func(http.Handler) http.Handler) {
	if readLimit == nil {
		readLimit = func(next http.Handler) http.Handler { return next }
	}
	r.With(readLimit).Get("/posts", h.List)
	r.Post("/posts", h.Create)
	r.Get("/posts/{id}", h.Show)
	r.Get("/posts/{id}/edit", h.Edit)
	r.Put("/posts/{id}", h.Update)
	r.Patch("/posts/{id}", h.Update)
	r.Delete("/posts/{id}", h.Delete)
	r.With(readLimit).Get("/posts-search", h.Search)
}

func (h *PostsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := pagination(r)
	status := models.Status(strings.TrimSpace(query.Get("status")))
	if status != "" && !status.Valid() {
		respondError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	posts, total, err := h.store.List(r.Context(), models.ListQuery{
		Pagination: page,
		Status:     status,
		Tag:        strings.TrimSpace(query.Get("tag")),
		Author:     strings.TrimSpace(query.Get("author")),
		Title:      strings.TrimSpace(query.Get("title")),
	})
	if err != nil {
		h.writeStoreError(w, r, err, "failed to load posts")
		return
	}

	respondJSON(w, http.StatusOK, PostsResponse{
		Data:     posts,
		Page:     page.Page,
		Limit:    page.PageSize,
		Total:    total,
		LastPage: page.LastPage(total),
	})
}

func (h *PostsHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		query = r.URL.Query().Get("query")
	}
	page := pagination(r)

	hits, total, err := h.store.Search(r.Context(), query, page)
	if err != nil {
		h.writeStoreError(w, r, err, "failed to search posts")
		return
	}

	respondJSON(w, http.StatusOK, PostsResponse{
		Data:     hits,
		Page:     page.Page,
		Limit:    page.PageSize,
		Total:    total,
		LastPage: page.LastPage(total),
		Query:    query,
	})
}

func (h *PostsHandler) Show(w http.ResponseWriter, r *http.Request) {
	post, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err, "failed to load post")
		return
	}
	respondJSON(w, http.StatusOK, post)
}

func (h *PostsHandler) Edit(w http.ResponseWriter, r *http.Request) {
	post, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err, "failed to load post")
		return
	}
	respondJSON(w, http.StatusOK, EditResponse{
		Post: post,
		Form: EditForm{
			Title:   post.Title,
			Content: post.Content,
			Status:  string(post.Status),
			Author:  post.Metadata.Author(),
			Tags:    models.JoinTags(post.Metadata.Tags()),
		},
		Statuses: models.Statuses(),
	})
}

func (h *PostsHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := decodePostRequest(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.store.Create(r.Context(), req.input())
	if err != nil {
		h.writeStoreError(w, r, err, "failed to create post")
		return
	}
	h.logger.InfoContext(r.Context(), "post created", "id", created.ID, "status", created.Status)
	respondJSON(w, http.StatusCreated, created)
}

func (h *PostsHandler) Update(w http.ResponseWriter, r *http.Request) {
	req, err := decodePostRequest(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.store.Update(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		h.writeStoreError(w, r, err, "failed to update post")
		return
	}
	h.logger.InfoContext(r.Context(), "post updated", "id", updated.ID, "status", updated.Status)
	respondJSON(w, http.StatusOK, updated)
}

func (h *PostsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err, "failed to delete post")
		return
	}
	h.logger.InfoContext(r.Context(), "post deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// writeStoreError maps store errors to responses. Storage failures are
// logged and reported with the generic message only.
func (h *PostsHandler) writeStoreError(w http.ResponseWriter, r *http.Request, err error, message string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, db.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	default:
		h.logger.ErrorContext(r.Context(), message, "error", err, "path", r.URL.Path)
		respondError(w, http.StatusInternalServerError, message)
	}
}

func decodePostRequest(w http.ResponseWriter, r *http.Request) (PostRequest, error) {
	var req PostRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.New("invalid body")
		}
		return req, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return req, errors.New("invalid form")
		}
	default:
		if err := r.ParseForm(); err != nil {
			return req, errors.New("invalid form")
		}
	}
	req.Title = r.PostFormValue("title")
	req.Content = r.PostFormValue("content")
	req.Status = r.PostFormValue("status")
	req.Author = r.PostFormValue("author")
	req.Tags = tagList(r.PostFormValue("tags"))
	return req, nil
}

func pagination(r *http.Request) models.Pagination {
	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	limit := parsePositiveInt(r.URL.Query().Get("limit"), models.DefaultPageSize)
	return models.Pagination{Page: page, PageSize: limit}.Normalize()
}

func parsePositiveInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
