package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	inference "github.com/bryanwahyu/tomvto/internal/domain/inference"
	predictions "github.com/bryanwahyu/tomvto/internal/domain/predictions"
)

// Error codes let the dashboard tell failure classes apart.
const (
	CodeBadRequest         = "bad_request"
	CodeValidation         = "validation_error"
	CodeNotFound           = "not_found"
	CodeStorageUnavailable = "storage_unavailable"
	CodeServiceError       = "service_error"
	CodeServiceUnavailable = "service_unavailable"
	CodePayloadTooLarge    = "payload_too_large"
	CodeInternal           = "internal_error"
)

type errorResponse struct {
	Error          string          `json:"error"`
	Code           string          `json:"code"`
	Details        json.RawMessage `json:"details,omitempty"`
	UpstreamStatus int             `json:"upstreamStatus,omitempty"`
}

// classify maps an error to its HTTP status and response body
func classify(err error) (int, errorResponse) {
	op := "Request"
	var oe *opError
	if errors.As(err, &oe) {
		op = oe.op
	}

	var (
		reqErr   *requestError
		svcErr   *inference.ServiceError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, errorResponse{Error: reqErr.msg, Code: CodeBadRequest}
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large", Code: CodePayloadTooLarge}
	case errors.Is(err, inference.ErrImageRequired):
		return http.StatusBadRequest, errorResponse{Error: "No image provided", Code: CodeBadRequest}
	case errors.Is(err, inference.ErrInvalidThreshold):
		return http.StatusBadRequest, errorResponse{Error: inference.ErrInvalidThreshold.Error(), Code: CodeBadRequest}
	case errors.Is(err, predictions.ErrValidation):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Code: CodeValidation}
	case errors.Is(err, predictions.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "Prediction not found", Code: CodeNotFound}
	case errors.Is(err, predictions.ErrStorageUnavailable):
		return http.StatusInternalServerError, errorResponse{Error: op + " failed: prediction storage unavailable", Code: CodeStorageUnavailable}
	case errors.Is(err, inference.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: "ML service unavailable", Code: CodeServiceUnavailable}
	case errors.As(err, &svcErr):
		msg := svcErr.Message
		if msg == "" {
			msg = op + " failed"
		}
		return http.StatusInternalServerError, errorResponse{
			Error:          msg,
			Code:           CodeServiceError,
			Details:        svcErr.Details,
			UpstreamStatus: svcErr.Status,
		}
	default:
		return http.StatusInternalServerError, errorResponse{Error: op + " failed", Code: CodeInternal}
	}
}

func (r *Router) writeError(w http.ResponseWriter, req *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		r.logger.Error("request failed", "method", req.Method, "path", req.URL.Path, "status", status, "error", err)
	} else {
		r.logger.Debug("request rejected", "method", req.Method, "path", req.URL.Path, "status", status, "error", err)
	}
	_ = writeJSON(w, status, body)
}
