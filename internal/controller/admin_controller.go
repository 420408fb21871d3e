package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"insight-gateway/internal/service"
	"insight-gateway/internal/utils"
	"insight-gateway/pkg/response"
)

// AdminController serves data status, integrity checks and refresh control
type AdminController struct {
	engine    *service.RetrievalService
	refresher *service.RefreshService
}

// NewAdminController creates the controller. refresher may be nil when no
// source is configured, in which case refresh requests fail with 503.
func NewAdminController(engine *service.RetrievalService, refresher *service.RefreshService) *AdminController {
	return &AdminController{engine: engine, refresher: refresher}
}

// Status godoc
// @Summary Data status
// @Description Generation, table sizes, indexes, cache counters and query metrics.
// @Tags admin
// @Produce json
// @Success 200 {object} response.StandardResponse{data=service.EngineStats}
// @Router /api/v1/status [get]
func (ac *AdminController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, response.SuccessResponse(ac.engine.Stats(), correlationID(c)))
}

// Integrity godoc
// @Summary Cross-reference check of the published data
// @Tags admin
// @Produce json
// @Success 200 {object} response.StandardResponse{data=model.ValidationReport}
// @Router /api/v1/integrity [get]
func (ac *AdminController) Integrity(c *gin.Context) {
	report, err := ac.engine.CheckIntegrity(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse(report, correlationID(c)))
}

// Refresh godoc
// @Summary Reload the data from the configured source
// @Description Validates and publishes a new generation. A rejected refresh
// returns 422 with the validation reports and leaves the data unchanged.
// @Tags admin
// @Produce json
// @Success 200 {object} response.StandardResponse{data=model.RefreshResult}
// @Failure 409 {object} response.StandardResponse
// @Failure 422 {object} response.StandardResponse{data=model.RefreshResult}
// @Failure 503 {object} response.StandardResponse
// @Router /api/v1/admin/refresh [post]
func (ac *AdminController) Refresh(c *gin.Context) {
	if ac.refresher == nil {
		respondError(c, utils.NewSourceUnavailableError("none", errors.New("no ingestion source configured")))
		return
	}

	result, err := ac.refresher.Reload(c.Request.Context())
	if err != nil {
		status, body := response.FromError(err, correlationID(c))
		if result != nil {
			body.Data = result
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse(result, correlationID(c)))
}

// SweepCache godoc
// @Summary Drop cache entries of old generations
// @Tags admin
// @Produce json
// @Success 200 {object} response.StandardResponse
// @Router /api/v1/admin/cache/sweep [post]
func (ac *AdminController) SweepCache(c *gin.Context) {
	removed := ac.engine.SweepCache()
	c.JSON(http.StatusOK, response.SuccessResponse(gin.H{
		"removed": removed,
		"cache":   ac.engine.CacheStats(),
	}, correlationID(c)))
}
