package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lifeline/internal/checksum"
	"github.com/starford/lifeline/internal/lifeline"
	"github.com/starford/lifeline/internal/sse"
	"github.com/starford/lifeline/internal/viewer"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *viewer.Service
	broker *sse.Broker
}

// NewHandler creates a new Handler.
func NewHandler(svc *viewer.Service, broker *sse.Broker) *Handler {
	return &Handler{svc: svc, broker: broker}
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// itemID extracts the item id from the URL (everything after /items/).
// Supports encoded slashes (e.g. career%2Fnew-job.md).
func itemID(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// OpenSession handles POST /api/sessions.
//
//	@Summary		Mount a timeline view and load every timeline into it
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OpenSessionRequest	true	"Container size and optional shortcut"
//	@Success		201		{object}	SessionState
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	FetchFailurePage
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := h.svc.Open(r.Context(), req)
	if err != nil {
		writeError(w, "open session", err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+st.ID)
	writeJSON(w, http.StatusCreated, st)
}

// GetSession handles GET /api/sessions/{id}.
//
//	@Summary		Get groups, window, visible items and selection
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SessionState
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.State(sessionID(r))
	if err != nil {
		writeError(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// CloseSession handles DELETE /api/sessions/{id}.
//
//	@Summary		Unmount a session
//	@Tags			sessions
//	@Param			id	path	string	true	"Session id"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [delete]
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Close(sessionID(r)); err != nil {
		writeError(w, "close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Frame handles GET /api/sessions/{id}/frame.svg.
//
//	@Summary		Current SVG frame of the session
//	@Tags			sessions
//	@Produce		image/svg+xml
//	@Param			id	path	string	true	"Session id"
//	@Success		200
//	@Success		304
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/frame.svg [get]
func (h *Handler) Frame(w http.ResponseWriter, r *http.Request) {
	frame, _, err := h.svc.Frame(sessionID(r))
	if err != nil {
		writeError(w, "frame", err)
		return
	}
	etag := `"` + checksum.Sum(frame) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame)
}

// ExportICS handles GET /api/sessions/{id}/export.ics.
//
//	@Summary		Export the visible window as iCalendar
//	@Tags			sessions
//	@Produce		text/calendar
//	@Param			id	path	string	true	"Session id"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/export.ics [get]
func (h *Handler) ExportICS(w http.ResponseWriter, r *http.Request) {
	groups, items, err := h.svc.VisibleSnapshot(sessionID(r))
	if err != nil {
		writeError(w, "export ics", err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="lifeline.ics"`)
	w.WriteHeader(http.StatusOK)
	_ = viewer.WriteICS(w, "lifeline", groups, items, time.Now())
}

// SetWindow handles POST /api/sessions/{id}/window.
//
//	@Summary		Move the window to a shortcut or explicit bounds
//	@Tags			navigation
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		WindowRequest	true	"Shortcut or bounds"
//	@Success		200		{object}	SessionState
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/window [post]
func (h *Handler) SetWindow(w http.ResponseWriter, r *http.Request) {
	var req WindowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var (
		st  *SessionState
		err error
	)
	switch {
	case req.Shortcut != "":
		st, err = h.svc.Shortcut(sessionID(r), req.Shortcut)
	case req.Start != nil && req.End != nil:
		st, err = h.svc.SetWindow(sessionID(r), lifeline.Window{Start: *req.Start, End: *req.End})
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("shortcut or start and end are required"))
		return
	}
	if err != nil {
		writeError(w, "set window", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Pan handles POST /api/sessions/{id}/pan.
//
//	@Summary		Shift the window
//	@Tags			navigation
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Session id"
//	@Param			body	body		PanRequest	true	"Offset in seconds"
//	@Success		200		{object}	SessionState
//	@Security		BearerAuth
//	@Router			/sessions/{id}/pan [post]
func (h *Handler) Pan(w http.ResponseWriter, r *http.Request) {
	var req PanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := h.svc.Pan(sessionID(r), time.Duration(req.Seconds*float64(time.Second)))
	if err != nil {
		writeError(w, "pan", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Zoom handles POST /api/sessions/{id}/zoom.
//
//	@Summary		Scale the window around its center
//	@Tags			navigation
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Session id"
//	@Param			body	body		ZoomRequest	true	"Scale factor"
//	@Success		200		{object}	SessionState
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/zoom [post]
func (h *Handler) Zoom(w http.ResponseWriter, r *http.Request) {
	var req ZoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := h.svc.Zoom(sessionID(r), req.Factor)
	if err != nil {
		writeError(w, "zoom", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Resize handles POST /api/sessions/{id}/resize.
//
//	@Summary		Resize the container
//	@Tags			navigation
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		ResizeRequest	true	"New size"
//	@Success		200		{object}	SessionState
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/resize [post]
func (h *Handler) Resize(w http.ResponseWriter, r *http.Request) {
	var req ResizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := h.svc.Resize(sessionID(r), req.Width, req.Height)
	if err != nil {
		writeError(w, "resize", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Select handles POST /api/sessions/{id}/select.
//
//	@Summary		Select one item or clear the selection
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		SelectRequest	true	"Item ids; only the first is kept"
//	@Success		200		{object}	SessionState
//	@Security		BearerAuth
//	@Router			/sessions/{id}/select [post]
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := h.svc.Select(sessionID(r), req.IDs)
	if err != nil {
		writeError(w, "select", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Refresh handles POST /api/sessions/{id}/refresh.
//
//	@Summary		Refetch every timeline and replace the dataset
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SessionState
//	@Failure		409	{object}	errResponse
//	@Failure		502	{object}	FetchFailurePage
//	@Security		BearerAuth
//	@Router			/sessions/{id}/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Refresh(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ToggleThumbnails handles POST /api/sessions/{id}/thumbnails.
//
//	@Summary		Toggle image thumbnails in item content
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SessionState
//	@Security		BearerAuth
//	@Router			/sessions/{id}/thumbnails [post]
func (h *Handler) ToggleThumbnails(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.ToggleThumbnails(sessionID(r))
	if err != nil {
		writeError(w, "toggle thumbnails", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetItem handles GET /api/sessions/{id}/items/*.
//
//	@Summary		Get one item of the session, visible or not
//	@Tags			sessions
//	@Produce		json
//	@Param			id		path		string	true	"Session id"
//	@Param			item	path		string	true	"Item id"
//	@Success		200		{object}	Interval
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/items/{item} [get]
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := itemID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("item id is required"))
		return
	}
	iv, err := h.svc.Item(sessionID(r), id)
	if err != nil {
		writeError(w, "get item", err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

// Search handles GET /api/sessions/{id}/search.
//
//	@Summary		Search the session's items by text or tag
//	@Tags			search
//	@Produce		json
//	@Param			id		path		string	true	"Session id"
//	@Param			q		query		string	false	"Search query"
//	@Param			tag		query		string	false	"Tag filter"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	hits, err := h.svc.Search(sessionID(r), q.Get("q"), q.Get("tag"), limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, SearchResult{
			ID:      hit.ID,
			Group:   hit.GroupID,
			Title:   hit.Title,
			Snippet: hit.Snippet,
		})
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Tags handles GET /api/sessions/{id}/tags.
//
//	@Summary		Tags of the session's items with counts
//	@Tags			search
//	@Produce		json
//	@Param			id	path	string	true	"Session id"
//	@Success		200	{array}	TagCount
//	@Security		BearerAuth
//	@Router			/sessions/{id}/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.Tags(sessionID(r))
	if err != nil {
		writeError(w, "tags", err)
		return
	}
	out := make([]TagCount, 0, len(tags))
	for _, tc := range tags {
		out = append(out, TagCount{Tag: tc.Tag, Count: tc.Count})
	}
	writeJSON(w, http.StatusOK, out)
}

// Events handles GET /api/sessions/{id}/events.
//
//	@Summary		Server-sent events of one session
//	@Tags			sessions
//	@Produce		text/event-stream
//	@Param			id	path	string	true	"Session id"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/events [get]
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if _, err := h.svc.Get(id); err != nil {
		writeError(w, "events", err)
		return
	}
	h.broker.Handler(func(*http.Request) string { return id })(w, r)
}
