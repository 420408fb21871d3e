package controller

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"insight-gateway/internal/middleware"
	"insight-gateway/pkg/response"
)

func correlationID(c *gin.Context) string {
	return middleware.GetCorrelationID(c)
}

// respondError writes err with the status its code maps to
func respondError(c *gin.Context, err error) {
	status, body := response.FromError(err, correlationID(c))
	if status >= 500 {
		_ = c.Error(err)
	}
	c.JSON(status, body)
}

// validationMessage renders validator errors as "field: rule" pairs
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
