package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/domain"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/services"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/ports"
)

type HTTPHandler struct {
	service ports.LinkService
	baseURL string
}

func NewHTTPHandler(service ports.LinkService, baseURL string) *HTTPHandler {
	return &HTTPHandler{service: service, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// CreateLinkRequest payload
type CreateLinkRequest struct {
	URL         string `json:"url"`
	AnonymousID string `json:"anonymous_id,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// Create shortens a URL for the caller. Callers without a token are
// anonymous; one without an anonymous_id is given a fresh one.
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}

	var userID *int64
	var anonymousID *string
	if p, ok := PrincipalFrom(r.Context()); ok {
		userID = &p.UserID
	} else {
		id := req.AnonymousID
		if id == "" {
			id = uuid.NewString()
		}
		anonymousID = &id
	}

	link, err := h.service.Shorten(r.Context(), req.URL, userID, anonymousID)
	if err != nil {
		if errors.Is(err, services.ErrInvalidURL) {
			writeError(w, http.StatusBadRequest, "Invalid URL format")
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("shorten failed")
		writeError(w, http.StatusInternalServerError, "Failed to create short URL")
		return
	}

	res := domain.ShortenResult{
		ShortCode:   link.ShortCode,
		ShortURL:    h.baseURL + "/" + link.ShortCode,
		OriginalURL: link.OriginalURL,
	}
	if anonymousID != nil {
		res.AnonymousID = *anonymousID
	}
	writeJSON(w, http.StatusCreated, res)
}

// Redirect to original URL, counting the click first.
func (h *HTTPHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	originalURL, err := h.service.RedirectAndCount(r.Context(), code, r.Referer(), r.UserAgent(), clientIP(r))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			zerolog.Ctx(r.Context()).Error().Err(err).Str("code", code).Msg("redirect failed")
		}
		writeError(w, http.StatusNotFound, "Short URL not found")
		return
	}

	http.Redirect(w, r, originalURL, http.StatusMovedPermanently)
}

// Get returns a link's details without counting a click.
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	link, err := h.service.GetLinkByShortCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Short URL not found")
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// List returns the caller's links: by token, by anonymous_id, or all.
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	var userID *int64
	if p, ok := PrincipalFrom(r.Context()); ok {
		userID = &p.UserID
	}

	links, err := h.service.ListLinks(r.Context(), userID, r.URL.Query().Get("anonymous_id"))
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list failed")
		writeError(w, http.StatusInternalServerError, "Failed to fetch URLs")
		return
	}

	writeJSON(w, http.StatusOK, domain.LinkList{Total: len(links), URLs: links})
}

// clientIP prefers the first X-Forwarded-For hop set by the edge.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
