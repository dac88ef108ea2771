package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fonsecaaso/goodproducts/go-server/internal/middleware"
	"github.com/fonsecaaso/goodproducts/go-server/internal/model"
	"github.com/fonsecaaso/goodproducts/go-server/internal/service"
	"github.com/fonsecaaso/goodproducts/go-server/internal/workflow"
)

// SubmissionResponse is returned by the JSON submit endpoint
type SubmissionResponse struct {
	Message string                  `json:"message"`
	Record  *model.SubmissionRecord `json:"record"`
}

type pageData struct {
	State         string
	Fields        model.FormState
	CanSubmit     bool
	Notifications []workflow.Notification
	ResetSeconds  int
}

type ProductHandler struct {
	logger *zap.Logger
}

func NewProductHandler() *ProductHandler {
	return &ProductHandler{
		logger: zap.L().With(zap.String("component", "ProductHandler")),
	}
}

// Page renders the landing page for the visitor's session, or a blank form
// when the visitor has none yet
func (h *ProductHandler) Page(c *gin.Context) {
	snapshot := h.currentSnapshot(c)
	c.HTML(http.StatusOK, "index.tmpl", pageData{
		State:         snapshot.State.String(),
		Fields:        snapshot.Fields,
		CanSubmit:     snapshot.CanSubmit,
		Notifications: snapshot.Notifications,
		ResetSeconds:  int(workflow.ResetDelay.Seconds()),
	})
}

// SubmitForm handles the page's form post and redirects back to the page
func (h *ProductHandler) SubmitForm(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var form model.FormState
	if err := c.ShouldBind(&form); err != nil {
		h.logger.Warn("Invalid form body", zap.Error(err))
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	if err := session.UpdateFields(form); err != nil {
		h.logger.Debug("Form post ignored", zap.Error(err))
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	if _, err := session.Submit(c.Request.Context()); err != nil {
		h.logger.Info("Form submission not completed", zap.Error(err))
	}

	c.Redirect(http.StatusSeeOther, "/")
}

// GetSession returns the session snapshot
func (h *ProductHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.currentSnapshot(c))
}

// currentSnapshot hands pending toasts to the caller exactly once
func (h *ProductHandler) currentSnapshot(c *gin.Context) workflow.Snapshot {
	session, err := middleware.GetSessionFromContext(c)
	if err != nil {
		return workflow.BlankSnapshot()
	}
	return session.SnapshotAndTake()
}

// UpdateFields replaces the session's form fields
func (h *ProductHandler) UpdateFields(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var form model.FormState
	if err := c.ShouldBindJSON(&form); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request format",
			Code:  "INVALID_JSON",
		})
		return
	}

	if err := session.UpdateFields(form); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, session.Snapshot())
}

// Submit runs the submission workflow for the session's current fields
func (h *ProductHandler) Submit(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	record, err := session.Submit(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SubmissionResponse{
		Message: "Product submitted successfully!",
		Record:  record,
	})
}

func (h *ProductHandler) session(c *gin.Context) (*workflow.Session, bool) {
	session, err := middleware.GetSessionFromContext(c)
	if err != nil {
		h.logger.Error("Session missing from request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Code:  "INTERNAL_ERROR",
		})
		return nil, false
	}
	return session, true
}

func (h *ProductHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, workflow.ErrSubmitDisabled):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "Required fields are missing",
			Code:    "SUBMIT_DISABLED",
			Details: "productName, description, websiteUrl and email are required",
		})
	case errors.Is(err, workflow.ErrSubmitInProgress):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "A submission is already in progress",
			Code:  "SUBMIT_IN_PROGRESS",
		})
	case errors.Is(err, workflow.ErrNotEditing):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "Product already submitted",
			Code:  "NOT_EDITING",
		})
	case errors.Is(err, workflow.ErrReadOnly):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "Fields are read-only",
			Code:  "READ_ONLY",
		})
	case errors.Is(err, workflow.ErrSessionClosed):
		c.JSON(http.StatusGone, ErrorResponse{
			Error: "Session expired",
			Code:  "SESSION_CLOSED",
		})
	case errors.Is(err, service.ErrSubmissionFailed):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "Submission Failed",
			Code:    "SUBMISSION_FAILED",
			Details: "Please try again later.",
		})
	default:
		h.logger.Error("Unexpected error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}
