package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

var validationErrors = []error{
	domain.ErrInvalidQuantity,
	domain.ErrInvalidStatus,
	domain.ErrEmptyCart,
	domain.ErrUserRequired,
	domain.ErrProductRequired,
	domain.ErrOrderIDRequired,
	domain.ErrProductNameRequired,
	domain.ErrPriceNegative,
	domain.ErrPricePrecision,
	domain.ErrStockNegative,
}

// errorResponse — тело ответа с ошибкой.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// classify сопоставляет ошибку сервиса HTTP-статусу и машинному коду.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, domain.ErrProductInUse):
		return http.StatusConflict, "product_in_use"
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest, "empty_cart"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest, "invalid_request"
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(c *gin.Context, logger *log.Entry, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: message, Code: code})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_request"})
}
