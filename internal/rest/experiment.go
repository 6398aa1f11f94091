package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"abExperiments/business/experiment"
	"abExperiments/domain"
	"abExperiments/pkg/logger"
	"abExperiments/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type ExperimentService interface {
	Dashboard(ctx context.Context) (*domain.Dashboard, error)
	ListExperiments(ctx context.Context, status domain.ExperimentStatus) ([]domain.ExperimentSummary, error)
	GetResults(ctx context.Context, id uint64) (*domain.ExperimentResults, error)
	CreateExperiment(ctx context.Context, input experiment.CreateExperimentInput) (*domain.Experiment, error)
	StartExperiment(ctx context.Context, id uint64) (domain.Experiment, error)
	CompleteExperiment(ctx context.Context, id uint64) (domain.Experiment, error)
	AssignUser(ctx context.Context, key domain.AssignmentKey) (domain.Assignment, error)
	RecordConversion(ctx context.Context, key domain.AssignmentKey, conv domain.Conversion) (domain.Assignment, error)
	GetUserVariant(ctx context.Context, key domain.AssignmentKey) (string, bool, error)
	DeleteExperiment(ctx context.Context, id uint64) (bool, error)
}

type ExperimentHandler struct {
	experimentService ExperimentService
	validator         *validator.Validate
	timeout           time.Duration
}

func NewExperimentHandler(experimentService ExperimentService, timeout time.Duration) *ExperimentHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ExperimentHandler{
		experimentService: experimentService,
		validator:         validator.New(),
		timeout:           timeout,
	}
}

type CreateExperimentRequest struct {
	Name             string           `json:"name" validate:"required"`
	Description      string           `json:"description"`
	Variants         []domain.Variant `json:"variants" validate:"min=2"`
	SuccessMetric    string           `json:"success_metric"`
	TargetSampleSize int              `json:"target_sample_size"`
	CreatedBy        *uint64          `json:"created_by"`
}

type AssignRequest struct {
	UserID   uint64 `json:"user_id" validate:"required"`
	UserType string `json:"user_type"`
}

type ConvertRequest struct {
	UserID          uint64   `json:"user_id" validate:"required"`
	UserType        string   `json:"user_type"`
	EngagementScore *float64 `json:"engagement_score"`
	TimeToAction    *float64 `json:"time_to_action"`
}

func (h *ExperimentHandler) Dashboard(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	dashboard, err := h.experimentService.Dashboard(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to build dashboard", "error", err)
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, response.Success(map[string]any{
		"summary":           dashboard.Summary,
		"activeExperiments": dashboard.ActiveExperiments,
		"recentCompleted":   dashboard.RecentCompleted,
		"drafts":            dashboard.Drafts,
	}))
}

func (h *ExperimentHandler) ListExperiments(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	status := domain.ExperimentStatus(c.QueryParam("status"))

	experiments, err := h.experimentService.ListExperiments(ctx, status)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to find all experiments", "error", err)
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, response.Success(map[string]any{
		"experiments": experiments,
		"count":       len(experiments),
	}))
}

func (h *ExperimentHandler) GetExperimentResults(c echo.Context) error {
	id, err := experimentID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.Error(err.Error()))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	results, err := h.experimentService.GetResults(ctx, id)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to get experiment results", "experiment_id", id, "error", err)
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, response.Success(map[string]any{
		"experiment":              results.Experiment,
		"totalParticipants":       results.TotalParticipants,
		"variantStats":            results.VariantStats,
		"statisticalSignificance": results.StatisticalSignificance,
		"recommendation":          results.Recommendation,
	}))
}

func (h *ExperimentHandler) CreateExperiment(c echo.Context) error {
	var req CreateExperimentRequest

	if err := c.Bind(&req); err != nil {
		logger.Error("Invalid request body", err)
		return c.JSON(http.StatusBadRequest, response.Error("invalid request body"))
	}

	if err := h.validator.Struct(&req); err != nil {
		logger.Error("Failed to validate experiment request", err)
		return c.JSON(http.StatusBadRequest, response.Error("Name and at least 2 variants are required"))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	created, err := h.experimentService.CreateExperiment(ctx, experiment.CreateExperimentInput{
		Name:             req.Name,
		Description:      req.Description,
		Variants:         req.Variants,
		SuccessMetric:    req.SuccessMetric,
		TargetSampleSize: req.TargetSampleSize,
		CreatedBy:        req.CreatedBy,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create experiment", "error", err)
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusCreated, response.Success(map[string]any{
		"experiment": created,
		"message":    "Experiment created in draft status",
	}))
}

func (h *ExperimentHandler) StartExperiment(c echo.Context) error {
	return h.transition(c, h.experimentService.StartExperiment, "Experiment started")
}

func (h *ExperimentHandler) CompleteExperiment(c echo.Context) error {
	return h.transition(c, h.experimentService.CompleteExperiment, "Experiment completed")
}

func (h *ExperimentHandler) transition(
	c echo.Context,
	move func(context.Context, uint64) (domain.Experiment, error),
	message string,
) error {
	id, err := experimentID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.Error(err.Error()))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	updated, err := move(ctx, id)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to update experiment status", "experiment_id", id, "error", err)
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, response.Success(map[string]any{
		"experiment": updated,
		"message":    message,
	}))
}

func (h *ExperimentHandler) AssignUser(c echo.Context) error {
	id, err := experimentID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.Error(err.Error()))
	}

	var req AssignRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Invalid request body", err)
		return c.JSON(http.StatusBadRequest, response.Error("invalid request body"))
	}

	if err := h.validator.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.Error("user_id is required"))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	assignment, err := h.experimentService.AssignUser(ctx, domain.AssignmentKey{
		ExperimentID: id,
		UserID:       req.UserID,
		UserType:     req.UserType,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to assign user", "experiment_id", id, "error", err)
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, response.Success(map[string]any{
		"assignment": assignment,
		"variant":    assignment.Variant,
	}))
}

func (h *ExperimentHandler) RecordConversion(c echo.Context) error {
	id, err := experimentID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.Error(err.Error()))
	}

	var req ConvertRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Invalid request body", err)
		return c.JSON(http.StatusBadRequest, response.Error("invalid request body"))
	}

	if err := h.validator.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.Error("user_id is required"))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	assignment, err := h.experimentService.RecordConversion(ctx,
		domain.AssignmentKey{
			ExperimentID: id,
			UserID:       req.UserID,
			UserType:     req.UserType,
		},
		domain.Conversion{
			EngagementScore: req.EngagementScore,
			TimeToAction:    req.TimeToAction,
		},
	)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to record conversion", "experiment_id", id, "error", err)
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, response.Success(map[string]any{
		"assignment": assignment,
		"message":    "Conversion recorded",
	}))
}

func (h *ExperimentHandler) GetUserVariant(c echo.Context) error {
	id, err := experimentID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.Error(err.Error()))
	}

	userID, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.Error("invalid user id"))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	variant, ok, err := h.experimentService.GetUserVariant(ctx, domain.AssignmentKey{
		ExperimentID: id,
		UserID:       userID,
		UserType:     c.QueryParam("user_type"),
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to get user variant", "experiment_id", id, "error", err)
		return errorResponse(c, err)
	}

	var payload *string
	if ok {
		payload = &variant
	}

	return c.JSON(http.StatusOK, response.Success(map[string]any{
		"variant":       payload,
		"hasAssignment": ok,
	}))
}

func (h *ExperimentHandler) DeleteExperiment(c echo.Context) error {
	id, err := experimentID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.Error(err.Error()))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	deleted, err := h.experimentService.DeleteExperiment(ctx, id)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to delete experiment", "experiment_id", id, "error", err)
		return errorResponse(c, err)
	}

	if !deleted {
		return c.JSON(http.StatusBadRequest, response.Error("Could not delete experiment (must be in draft status)"))
	}

	return c.JSON(http.StatusOK, response.Success(map[string]any{
		"message": "Experiment deleted",
	}))
}

var errInvalidExperimentID = errors.New("invalid experiment id")

func experimentID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errInvalidExperimentID
	}
	return id, nil
}

// errorResponse maps service errors onto HTTP status codes.
func errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrExperimentNotFound):
		return c.JSON(http.StatusNotFound, response.Error("Experiment not found"))
	case errors.Is(err, domain.ErrAssignmentNotFound):
		return c.JSON(http.StatusNotFound, response.Error("Assignment not found"))
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrExperimentNotActive),
		errors.Is(err, domain.ErrNotDraft),
		errors.Is(err, domain.ErrInvalidTransition):
		return c.JSON(http.StatusBadRequest, response.Error(err.Error()))
	default:
		return c.JSON(http.StatusInternalServerError, response.Error(err.Error()))
	}
}
