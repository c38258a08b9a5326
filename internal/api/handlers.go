// Package api contains the HTTP handlers for the RFC service.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/c21501/rfc-service/internal/auth"
	"github.com/c21501/rfc-service/internal/logging"
	"github.com/c21501/rfc-service/internal/services"
	"github.com/c21501/rfc-service/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	Rfcs      *services.RfcService
	Statuses  *services.StatusService
	Approvals *services.ApprovalService
	History   *services.HistoryService
	Logger    *logging.Logger
}

// NewServer creates a new Server.
func NewServer(rfcs *services.RfcService, statuses *services.StatusService, approvals *services.ApprovalService, history *services.HistoryService, logger *logging.Logger) *Server {
	return &Server{Rfcs: rfcs, Statuses: statuses, Approvals: approvals, History: history, Logger: logger}
}

// RegisterHandlers mounts the API routes on the (authenticated) group.
func (s *Server) RegisterHandlers(g *echo.Group) {
	g.POST("/rfcs", s.CreateRfc)
	g.GET("/rfcs", s.ListRfcs)
	g.GET("/rfcs/:id", s.GetRfc)
	g.PATCH("/rfcs/:id", s.UpdateRfc)
	g.DELETE("/rfcs/:id", s.DeleteRfc)

	g.GET("/rfcs/:id/history", s.GetRfcHistory)

	g.PUT("/rfcs/:id/approval", s.SetApproval)
	g.GET("/rfcs/:id/approvals", s.ListApprovals)

	g.PATCH("/rfcs/:id/subsystems/:linkId/confirmation", s.UpdateConfirmation)
	g.PATCH("/rfcs/:id/subsystems/:linkId/execution", s.UpdateExecution)
}

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// HandleHealth returns basic health status (always returns 200 OK).
func HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "rfc-service",
	})
}

// CreateRfc registers a new RFC.
// (POST /api/v1/rfcs)
func (s *Server) CreateRfc(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}

	var input services.RfcInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	rfc, err := s.Rfcs.Create(c.Request().Context(), &input, actor)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, rfc)
}

// ListRfcs returns every active RFC.
// (GET /api/v1/rfcs)
func (s *Server) ListRfcs(c echo.Context) error {
	rfcs, err := s.Rfcs.List(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rfcs)
}

// GetRfc returns one RFC.
// (GET /api/v1/rfcs/{id})
func (s *Server) GetRfc(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	rfc, err := s.Rfcs.Get(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rfc)
}

// UpdateRfc patches the user-editable fields of an RFC.
// (PATCH /api/v1/rfcs/{id})
func (s *Server) UpdateRfc(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var input services.RfcInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	rfc, err := s.Rfcs.Update(c.Request().Context(), id, &input, actor)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rfc)
}

// DeleteRfc soft-deletes an RFC.
// (DELETE /api/v1/rfcs/{id})
func (s *Server) DeleteRfc(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.Rfcs.SoftDelete(c.Request().Context(), id, actor); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetRfcHistory returns one page of the RFC's reconstructed audit timeline.
// (GET /api/v1/rfcs/{id}/history?offset=&limit=)
func (s *Server) GetRfcHistory(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 50
	}

	page, err := s.History.GetRfcHistory(c.Request().Context(), id, offset, limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, page)
}

type approvalRequest struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
}

// SetApproval records the caller's approval decision for the RFC.
// (PUT /api/v1/rfcs/{id}/approval)
func (s *Server) SetApproval(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req approvalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	approval, err := s.Approvals.SetApproval(c.Request().Context(), id, req.Approved, req.Comment, actor)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, approval)
}

// ListApprovals returns all approval records for the RFC.
// (GET /api/v1/rfcs/{id}/approvals)
func (s *Server) ListApprovals(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	approvals, err := s.Approvals.ListApprovals(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, approvals)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateConfirmation transitions a subsystem link's confirmation status.
// (PATCH /api/v1/rfcs/{id}/subsystems/{linkId}/confirmation)
func (s *Server) UpdateConfirmation(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}
	rfcID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	linkID, err := pathID(c, "linkId")
	if err != nil {
		return err
	}

	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	link, err := s.Statuses.UpdateConfirmationStatus(c.Request().Context(), rfcID, linkID, models.ConfirmationStatus(req.Status), actor)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, link)
}

// UpdateExecution transitions a subsystem link's execution status.
// (PATCH /api/v1/rfcs/{id}/subsystems/{linkId}/execution)
func (s *Server) UpdateExecution(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}
	rfcID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	linkID, err := pathID(c, "linkId")
	if err != nil {
		return err
	}

	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	link, err := s.Statuses.UpdateExecutionStatus(c.Request().Context(), rfcID, linkID, models.ExecutionStatus(req.Status), actor)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, link)
}

func requireUser(c echo.Context) (*models.User, error) {
	user, ok := auth.CurrentUser(c.Request().Context())
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	return user, nil
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// mapError translates service errors onto HTTP status codes.
func mapError(err error) error {
	var transition *models.InvalidTransitionError
	var validation *models.ValidationError

	switch {
	case errors.Is(err, models.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrAuthenticationFailed):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.As(err, &transition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &validation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
