package handlers

import (
	"errors"
	"net/http"

	"carelink/services/apperrors"
	"carelink/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByKind = map[apperrors.Kind]int{
	apperrors.KindValidation:        http.StatusBadRequest,
	apperrors.KindPaymentRequired:   http.StatusPaymentRequired,
	apperrors.KindNotFound:          http.StatusNotFound,
	apperrors.KindInvalidTransition: http.StatusConflict,
	apperrors.KindConflict:          http.StatusConflict,
}

// respondError renders a service error. Unclassified errors are logged and
// hidden behind a 500.
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		status, ok := statusByKind[appErr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		utils.JSONErrorCode(c, status, appErr.Code, appErr.Message, "")
		return
	}
	getLogger(c).Error("Request failed", zap.Error(err))
	utils.JSONErrorCode(c, http.StatusInternalServerError, "internal", "Internal Server Error", "")
}

func badRequest(c *gin.Context, err error) {
	utils.JSONErrorCode(c, http.StatusBadRequest, apperrors.ErrValidation.Code, "Invalid request", err.Error())
}
