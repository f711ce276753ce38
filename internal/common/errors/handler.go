// internal/common/errors/handler.go
package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorHandler writes errors returned by ops handlers as JSON responses.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HTTPStatus maps an error code onto the status returned by the ops API.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeSettingsInvalid, ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeAuthRequired:
		return http.StatusUnauthorized
	case ErrCodeRecordNotFound:
		return http.StatusNotFound
	case ErrCodeSyncNotConfigured:
		return http.StatusConflict
	case ErrCodeRemoteUnavailable, ErrCodeRemoteRejected:
		return http.StatusBadGateway
	case ErrCodeStoreReadFailed, ErrCodeStoreWriteFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleHTTPError normalizes err, logs it and writes the JSON body.
func (h *ErrorHandler) HandleHTTPError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := AsStandardError(err)
	status := HTTPStatus(stdErr.Code)

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", map[string]interface{}{
			"method":        r.Method,
			"path":          r.URL.Path,
			"errorCode":     string(stdErr.Code),
			"details":       stdErr.Details,
			"retryable":     stdErr.Retryable,
			"errorCategory": GetErrorCategory(stdErr.Code),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": stdErr})
}
