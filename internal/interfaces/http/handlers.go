package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/garyjia/logistics-console/internal/application/service"
	"github.com/garyjia/logistics-console/internal/domain/entity"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps   Deps
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Deps, logger Logger) *Handlers {
	return &Handlers{deps: deps, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Details   any    `json:"details,omitempty"`
}

// SessionResponse is an open form and the session that holds it
type SessionResponse struct {
	SessionID string `json:"sessionId"`
	service.FormSnapshot
}

// MutationResponse is the form after a line-item change
type MutationResponse struct {
	Item *entity.LineItem `json:"item,omitempty"`
	SessionResponse
}

// IdentityRequest signs the console in
type IdentityRequest struct {
	Token  string `json:"token" binding:"required"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// OpenSessionRequest opens a document
type OpenSessionRequest struct {
	DocumentType string `json:"documentType" binding:"required"`
	DocumentID   any    `json:"documentId" binding:"required"`
}

// HeaderRequest carries changed header fields
type HeaderRequest struct {
	Changes map[string]any `json:"changes" binding:"required"`
}

// StatusRequest selects an entry of the status menu
type StatusRequest struct {
	Action string `json:"action" binding:"required"`
}

// LineRequest is a line-item draft. Ids and numbers may be sent as JSON
// numbers or strings.
type LineRequest struct {
	LocalID         string `json:"localId"`
	ItemID          any    `json:"itemId"`
	UOMID           any    `json:"uomId"`
	CertificationID any    `json:"certificationId"`
	Quantity        any    `json:"quantity"`
	Rate            any    `json:"rate"`
	SalesRate       any    `json:"salesRate"`
}

func (r LineRequest) draft() *service.Draft {
	return &service.Draft{
		LocalID:         r.LocalID,
		ItemID:          entity.CanonicalID(r.ItemID),
		UOMID:           entity.CanonicalID(r.UOMID),
		CertificationID: entity.CanonicalID(r.CertificationID),
		Quantity:        cast.ToString(r.Quantity),
		Rate:            cast.ToString(r.Rate),
		SalesRate:       cast.ToString(r.SalesRate),
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if h.deps.Health != nil {
		ok, details := h.deps.Health(c.Request.Context())
		resp.Details = details
		if !ok {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, resp)
}

// ListDocumentTypes handles GET /api/document-types
func (h *Handlers) ListDocumentTypes(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Success: true, Data: h.deps.Sessions.Registry().All()})
}

// GetIdentity handles GET /api/identity
func (h *Handlers) GetIdentity(c *gin.Context) {
	ident, err := h.deps.Identity.Current(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: ident})
}

// PutIdentity handles PUT /api/identity
func (h *Handlers) PutIdentity(c *gin.Context) {
	var req IdentityRequest
	if !h.bind(c, &req) {
		return
	}
	ident, err := h.deps.Identity.SignIn(c.Request.Context(), req.Token, req.UserID, req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: ident})
}

// DeleteIdentity handles DELETE /api/identity
func (h *Handlers) DeleteIdentity(c *gin.Context) {
	if err := h.deps.Identity.SignOut(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// OpenSession handles POST /api/sessions. A session whose load failed but
// can be retried is created and returned with its error state.
func (h *Handlers) OpenSession(c *gin.Context) {
	var req OpenSessionRequest
	if !h.bind(c, &req) {
		return
	}
	documentID := entity.CanonicalID(req.DocumentID)
	if documentID == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "documentId is required"})
		return
	}

	sess, err := h.deps.Sessions.Open(c.Request.Context(), req.DocumentType, documentID)
	if sess == nil {
		h.fail(c, err)
		return
	}
	if err != nil {
		h.logger.Error("Document load failed", "session_id", sess.ID, "document_id", documentID, "error", err)
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: sessionResponse(sess)})
}

// GetSession handles GET /api/sessions/:id
func (h *Handlers) GetSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sessionResponse(sess)})
}

// CloseSession handles DELETE /api/sessions/:id
func (h *Handlers) CloseSession(c *gin.Context) {
	if err := h.deps.Sessions.Close(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// RetrySession handles POST /api/sessions/:id/retry
func (h *Handlers) RetrySession(c *gin.Context) {
	h.withSession(c, func(ctx context.Context, sess *service.Session) (any, error) {
		if err := sess.Form.Retry(ctx); err != nil {
			return nil, err
		}
		return sessionResponse(sess), nil
	})
}

// SaveHeader handles PUT /api/sessions/:id/header
func (h *Handlers) SaveHeader(c *gin.Context) {
	var req HeaderRequest
	if !h.bind(c, &req) {
		return
	}
	h.withSession(c, func(ctx context.Context, sess *service.Session) (any, error) {
		if err := sess.Form.Save(ctx, req.Changes); err != nil {
			return nil, err
		}
		return sessionResponse(sess), nil
	})
}

// CancelSession handles POST /api/sessions/:id/cancel
func (h *Handlers) CancelSession(c *gin.Context) {
	h.withSession(c, func(_ context.Context, sess *service.Session) (any, error) {
		sess.Form.Cancel()
		return sessionResponse(sess), nil
	})
}

// AddLine handles POST /api/sessions/:id/lines
func (h *Handlers) AddLine(c *gin.Context) {
	var req LineRequest
	if !h.bind(c, &req) {
		return
	}
	h.withSession(c, func(ctx context.Context, sess *service.Session) (any, error) {
		res, err := sess.Form.Store().Add(ctx, req.draft())
		if err != nil {
			return nil, err
		}
		return mutationResponse(sess, res), nil
	})
}

// UpdateLine handles PUT /api/sessions/:id/lines/:lineId
func (h *Handlers) UpdateLine(c *gin.Context) {
	var req LineRequest
	if !h.bind(c, &req) {
		return
	}
	h.withSession(c, func(ctx context.Context, sess *service.Session) (any, error) {
		res, err := sess.Form.Store().Update(ctx, c.Param("lineId"), req.draft())
		if err != nil {
			return nil, err
		}
		return mutationResponse(sess, res), nil
	})
}

// RemoveLine handles DELETE /api/sessions/:id/lines/:lineId
func (h *Handlers) RemoveLine(c *gin.Context) {
	h.withSession(c, func(ctx context.Context, sess *service.Session) (any, error) {
		if _, err := sess.Form.Store().Remove(ctx, c.Param("lineId")); err != nil {
			return nil, err
		}
		return sessionResponse(sess), nil
	})
}

// SelectStatus handles POST /api/sessions/:id/status
func (h *Handlers) SelectStatus(c *gin.Context) {
	var req StatusRequest
	if !h.bind(c, &req) {
		return
	}
	action, err := service.ParseStatusAction(req.Action)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.withSession(c, func(ctx context.Context, sess *service.Session) (any, error) {
		if _, err := sess.Form.StatusView().Select(ctx, action); err != nil {
			return nil, err
		}
		return sessionResponse(sess), nil
	})
}

// ExportLines handles GET /api/sessions/:id/export.xlsx
func (h *Handlers) ExportLines(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.deps.Exports.Write(&buf, sess.Form); err != nil {
		h.fail(c, err)
		return
	}

	filename := fmt.Sprintf("%s-%s.xlsx", sess.DocumentType, sess.DocumentID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// ListActivity handles GET /api/documents/:type/:id/activity
func (h *Handlers) ListActivity(c *gin.Context) {
	limit := cast.ToInt(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}

	records, err := h.deps.Activity.List(c.Request.Context(), c.Param("type"), c.Param("id"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

func (h *Handlers) session(c *gin.Context) (*service.Session, bool) {
	sess, err := h.deps.Sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return sess, true
}

// withSession runs fn against the addressed session and writes its result
func (h *Handlers) withSession(c *gin.Context, fn func(ctx context.Context, sess *service.Session) (any, error)) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	data, err := fn(c.Request.Context(), sess)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func (h *Handlers) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "Invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, body)
}

func sessionResponse(sess *service.Session) SessionResponse {
	return SessionResponse{SessionID: sess.ID, FormSnapshot: sess.Form.Snapshot()}
}

func mutationResponse(sess *service.Session, res *service.MutationResult) MutationResponse {
	resp := MutationResponse{SessionResponse: sessionResponse(sess)}
	if res != nil {
		item := res.Item
		resp.Item = &item
	}
	return resp
}
