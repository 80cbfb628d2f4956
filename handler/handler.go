package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"gmail-archiver/internal/domain"
	"gmail-archiver/internal/usecase"
)

type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

type Archiver interface {
	Archive(ctx context.Context, in usecase.ArchiveInput) (domain.Summary, error)
}

// request is the invocation payload. The gmail_* keys are accepted as
// aliases so existing test events keep working.
type request struct {
	FilterQuery      string `json:"filter_query"`
	NamespaceSegment string `json:"namespace_segment"`
	GmailQuery       string `json:"gmail_query"`
	GmailFolder      string `json:"gmail_user_id_s3_folder"`
}

type summaryResponse struct {
	RunID   string         `json:"runId"`
	Message string         `json:"message"`
	Summary domain.Summary `json:"summary"`
}

type errorResponse struct {
	RunID  string `json:"runId,omitempty"`
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type Handler struct {
	archiver Archiver
	log      *slog.Logger
}

func NewHandler(a Archiver, log *slog.Logger) (*Handler, error) {
	if a == nil {
		return nil, errors.New("handler: archiver must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{archiver: a, log: log}, nil
}

// Handle runs one archive invocation. Total failures return a non-nil error
// alongside the response so the platform records the invocation as failed;
// partial per-message failures do not.
func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) (Response, error) {
	runID := requestID(ctx)

	req, err := decodeRequest(raw)
	if err != nil {
		uerr := &usecase.Error{Code: usecase.ErrorConfig, Reason: "invalid_payload", Err: err}
		h.log.ErrorContext(ctx, "invalid invocation payload", "run_id", runID, "err", err)
		return errorResult(runID, uerr), uerr
	}

	in := usecase.ArchiveInput{
		Filter:    firstNonEmpty(req.FilterQuery, req.GmailQuery),
		Namespace: firstNonEmpty(req.NamespaceSegment, req.GmailFolder),
		RunID:     runID,
	}
	summary, err := h.archiver.Archive(ctx, in)
	if err != nil {
		return errorResult(runID, err), err
	}
	return jsonResponse(http.StatusOK, summaryResponse{
		RunID:   runID,
		Message: "Processing complete.",
		Summary: summary,
	}), nil
}

// decodeRequest accepts the payload itself or an EventBridge envelope whose
// detail carries it.
func decodeRequest(raw json.RawMessage) (request, error) {
	var req request
	if len(bytes.TrimSpace(raw)) == 0 {
		return req, nil
	}
	var probe struct {
		DetailType *string `json:"detail-type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return req, err
	}
	if probe.DetailType != nil {
		var event events.CloudWatchEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return req, err
		}
		raw = event.Detail
		if len(bytes.TrimSpace(raw)) == 0 {
			return req, nil
		}
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, err
	}
	return req, nil
}

func requestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return ""
}

func errorResult(runID string, err error) Response {
	var uerr *usecase.Error
	if !errors.As(err, &uerr) {
		return jsonResponse(http.StatusInternalServerError, errorResponse{RunID: runID, Error: string(usecase.ErrorInternal)})
	}
	return jsonResponse(statusFor(uerr.Code), errorResponse{RunID: runID, Error: string(uerr.Code), Reason: uerr.Reason})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorConfig, usecase.ErrorQuery:
		return http.StatusBadRequest
	case usecase.ErrorAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(status int, v any) Response {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return Response{
		StatusCode: status,
		Headers:    map[string]string{"content-type": "application/json"},
		Body:       string(body),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
