package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/labdesk-api/services"
	"github.com/upb/labdesk-api/utils"
	"go.uber.org/zap"
)

// statusForType maps domain error types to HTTP status codes
var statusForType = map[services.ErrorType]int{
	services.ErrorTypeValidation:   http.StatusBadRequest,
	services.ErrorTypeUnauthorized: http.StatusUnauthorized,
	services.ErrorTypeForbidden:    http.StatusForbidden,
	services.ErrorTypeNotFound:     http.StatusNotFound,
	services.ErrorTypeExternal:     http.StatusBadGateway,
	services.ErrorTypeUnavailable:  http.StatusServiceUnavailable,
	services.ErrorTypeInternal:     http.StatusInternalServerError,
}

// HandleServiceError maps domain errors to HTTP responses.
// Only the code and short message reach the client; causes are logged.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var domainErr *services.DomainError
	if !errors.As(err, &domainErr) {
		logger.Error("unhandled error type", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
		return
	}

	status, ok := statusForType[domainErr.Type]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := domainErr.Message
	if status >= http.StatusInternalServerError {
		logger.Error("service error",
			zap.String("code", domainErr.Code),
			zap.Int("status", status),
			zap.Error(err))
	} else {
		logger.Debug("handled service error",
			zap.String("code", domainErr.Code),
			zap.String("type", string(domainErr.Type)),
			zap.Error(err))
	}

	if err := utils.WriteError(w, status, domainErr.Code, message, nil); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}

// HandleValidationError handles validation errors from request parsing.
// code is the client-facing error code to report.
func HandleValidationError(w http.ResponseWriter, code string, err error, logger *zap.Logger) {
	var details map[string]interface{}
	message := err.Error()
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details = make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		message = "Validation failed"
	}

	if err := utils.WriteBadRequest(w, code, message, details); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
