package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"insight-gateway/internal/service"
	"insight-gateway/pkg/response"
)

type ReportController struct {
	reports *service.ReportService
}

func NewReportController(reports *service.ReportService) *ReportController {
	return &ReportController{reports: reports}
}

// ExecutiveSummary godoc
// @Summary Executive summary of the current data
// @Description Overview, sales, customer and inventory figures, each backed by a verifiable claim.
// JSON responses use the standard envelope; YAML is returned as a bare document.
// @Tags reports
// @Produce json,yaml
// @Param format query string false "json (default) or yaml"
// @Success 200 {object} response.StandardResponse{data=model.ExecutiveSummary}
// @Router /api/v1/reports/executive-summary [get]
func (rc *ReportController) ExecutiveSummary(c *gin.Context) {
	format, err := service.ParseFormat(c.Query("format"))
	if err != nil {
		respondError(c, err)
		return
	}

	summary, err := rc.reports.ExecutiveSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	if format == service.FormatJSON {
		c.JSON(http.StatusOK, response.SuccessResponse(summary, correlationID(c)))
		return
	}
	data, contentType, err := service.RenderSummary(summary, format)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}
