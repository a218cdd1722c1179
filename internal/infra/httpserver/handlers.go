package httpserver

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apppredictions "github.com/bryanwahyu/tomvto/internal/application/predictions"
	inference "github.com/bryanwahyu/tomvto/internal/domain/inference"
	predictions "github.com/bryanwahyu/tomvto/internal/domain/predictions"
	"github.com/bryanwahyu/tomvto/internal/middleware"
)

// GET /api/predictions
// An unreadable store is served as an empty history.
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, r.predictions.History(req.Context()))
}

// GET /api/predictions/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRecordID(id); err != nil {
		return badRequest("%s", err.Error())
	}
	rec, err := r.predictions.Get(req.Context(), predictions.RecordID(id))
	if err != nil {
		return withOp("Load prediction", err)
	}
	return writeJSON(w, http.StatusOK, rec)
}

type mutationResponse struct {
	Success bool                 `json:"success"`
	ID      predictions.RecordID `json:"id"`
}

// POST /api/predictions
func (r *Router) handleAppend(w http.ResponseWriter, req *http.Request) error {
	in, err := predictions.DecodeInput(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	id, err := r.predictions.Append(req.Context(), in)
	if err != nil {
		return withOp("Save prediction", err)
	}
	return writeJSON(w, http.StatusOK, mutationResponse{Success: true, ID: id})
}

// DELETE /api/predictions?id=<id>
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	id := middleware.SanitizeString(req.URL.Query().Get("id"))
	if id == "" {
		return badRequest("Prediction ID is required")
	}
	if err := middleware.ValidateRecordID(id); err != nil {
		return badRequest("%s", err.Error())
	}
	if err := r.predictions.Delete(req.Context(), predictions.RecordID(id)); err != nil {
		return withOp("Delete prediction", err)
	}
	return writeJSON(w, http.StatusOK, mutationResponse{Success: true, ID: predictions.RecordID(id)})
}

// GET /api/statistics
func (r *Router) handleStatistics(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, r.predictions.Statistics(req.Context()))
}

type imageRequest struct {
	Image string `json:"image"`
	Save  bool   `json:"save"`
}

// POST /api/predict/single
// Quick path: falls back to a labeled mock when the ML service fails.
func (r *Router) handlePredictSingle(w http.ResponseWriter, req *http.Request) error {
	var body imageRequest
	if err := decodeBody(w, req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateImageDataURI(body.Image); err != nil {
		return badRequest("%s", err.Error())
	}
	res, err := r.inference.ClassifySingle(req.Context(), body.Image)
	if err != nil {
		return withOp("Prediction", err)
	}
	return writeJSON(w, http.StatusOK, res)
}

type savedClassification struct {
	inference.ClassificationResult
	SavedID predictions.RecordID `json:"savedId,omitempty"`
}

// POST /api/predict/advanced
// Body: {"image": "<data uri>", "save": true}
func (r *Router) handlePredictAdvanced(w http.ResponseWriter, req *http.Request) error {
	var body imageRequest
	if err := decodeBody(w, req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateImageDataURI(body.Image); err != nil {
		return badRequest("%s", err.Error())
	}
	res, err := r.inference.ClassifyAdvanced(req.Context(), body.Image)
	if err != nil {
		return withOp("Advanced prediction", err)
	}

	out := savedClassification{ClassificationResult: res}
	if body.Save {
		id, err := r.predictions.Append(req.Context(), apppredictions.FromClassification(res, body.Image))
		if err != nil {
			return withOp("Save prediction", upstreamResult("/predict/advanced", err))
		}
		out.SavedID = id
	}
	return writeJSON(w, http.StatusOK, out)
}

type detectRequest struct {
	Image      string   `json:"image"`
	Confidence *float64 `json:"confidence"`
	Save       bool     `json:"save"`
}

type savedDetection struct {
	inference.DetectionResult
	SavedIDs []predictions.RecordID `json:"savedIds,omitempty"`
}

// POST /api/detect/multi
// Body: {"image": "<data uri>", "confidence": 0.25, "save": true}
func (r *Router) handleDetectMulti(w http.ResponseWriter, req *http.Request) error {
	var body detectRequest
	if err := decodeBody(w, req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateImageDataURI(body.Image); err != nil {
		return badRequest("%s", err.Error())
	}
	threshold := 0.0
	if body.Confidence != nil {
		threshold = *body.Confidence
	}

	res, err := r.inference.DetectMulti(req.Context(), body.Image, threshold)
	if err != nil {
		return withOp("Multi-seed detection", err)
	}

	out := savedDetection{DetectionResult: res}
	if body.Save {
		ids, err := r.predictions.AppendBatch(req.Context(), apppredictions.FromDetection(res))
		if err != nil {
			return withOp("Save detections", upstreamResult("/detect/multi", err))
		}
		out.SavedIDs = ids
	}
	return writeJSON(w, http.StatusOK, out)
}

// GET /api/model-info
func (r *Router) handleModelInfo(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, r.inference.ModelInfo(req.Context()))
}

// upstreamResult reports a result the ML service produced but the store
// rejected as a service error rather than a client validation error.
func upstreamResult(endpoint string, err error) error {
	if !errors.Is(err, predictions.ErrValidation) {
		return err
	}
	return &inference.ServiceError{
		Endpoint: endpoint,
		Status:   http.StatusOK,
		Message:  "ML service returned an invalid result: " + err.Error(),
	}
}
