package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/stretchr/testify/require"

	"gmail-archiver/internal/domain"
	"gmail-archiver/internal/usecase"
)

type stubArchiver struct {
	out   domain.Summary
	err   error
	in    usecase.ArchiveInput
	calls int
}

func (s *stubArchiver) Archive(_ context.Context, in usecase.ArchiveInput) (domain.Summary, error) {
	s.calls++
	s.in = in
	return s.out, s.err
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, a Archiver) *Handler {
	t.Helper()
	h, err := NewHandler(a, nil)
	require.NoError(t, err)
	return h
}

func lambdaCtx(requestID string) context.Context {
	return lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: requestID})
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil, nil)
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	a := &stubArchiver{out: domain.Summary{Attempted: 5, Succeeded: 4, Failed: 1}}
	h := newTestHandler(t, a)

	resp, err := h.Handle(lambdaCtx("req-1"), json.RawMessage(`{"filter_query":"in:inbox","namespace_segment":"user_xyz"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Headers["content-type"])
	require.Equal(t, usecase.ArchiveInput{Filter: "in:inbox", Namespace: "user_xyz", RunID: "req-1"}, a.in)

	out := parseBody[summaryResponse](t, resp.Body)
	require.Equal(t, "req-1", out.RunID)
	require.Equal(t, domain.Summary{Attempted: 5, Succeeded: 4, Failed: 1}, out.Summary)
}

func TestHandle_LegacyKeys(t *testing.T) {
	a := &stubArchiver{}
	h := newTestHandler(t, a)

	_, err := h.Handle(context.Background(), json.RawMessage(`{"gmail_query":"is:unread","gmail_user_id_s3_folder":"xyz"}`))
	require.NoError(t, err)
	require.Equal(t, "is:unread", a.in.Filter)
	require.Equal(t, "xyz", a.in.Namespace)
	require.Empty(t, a.in.RunID)
}

func TestHandle_EventBridgeEnvelope(t *testing.T) {
	a := &stubArchiver{}
	h := newTestHandler(t, a)

	event := `{
		"version": "0",
		"id": "evt-1",
		"detail-type": "Scheduled Event",
		"source": "aws.events",
		"time": "2026-10-18T06:00:00Z",
		"region": "us-east-1",
		"resources": [],
		"detail": {"filter_query": "newer_than:1d", "namespace_segment": "ops"}
	}`
	_, err := h.Handle(context.Background(), json.RawMessage(event))
	require.NoError(t, err)
	require.Equal(t, "newer_than:1d", a.in.Filter)
	require.Equal(t, "ops", a.in.Namespace)
}

func TestHandle_InvalidPayload(t *testing.T) {
	a := &stubArchiver{}
	h := newTestHandler(t, a)

	resp, err := h.Handle(context.Background(), json.RawMessage(`not-json`))
	require.Error(t, err)
	require.Equal(t, usecase.ErrorConfig, usecase.CodeOf(err))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Zero(t, a.calls)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorConfig), out.Error)
	require.Equal(t, "invalid_payload", out.Reason)
}

func TestHandle_EmptyPayloadReachesValidation(t *testing.T) {
	a := &stubArchiver{err: &usecase.Error{Code: usecase.ErrorConfig, Reason: "missing_filter_query"}}
	h := newTestHandler(t, a)

	resp, err := h.Handle(context.Background(), nil)
	require.Error(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, usecase.ArchiveInput{}, a.in)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "config", err: &usecase.Error{Code: usecase.ErrorConfig, Reason: "missing_namespace_segment"}, status: http.StatusBadRequest, code: string(usecase.ErrorConfig)},
		{name: "auth", err: &usecase.Error{Code: usecase.ErrorAuth, Reason: "token_refresh_failed"}, status: http.StatusUnauthorized, code: string(usecase.ErrorAuth)},
		{name: "query", err: &usecase.Error{Code: usecase.ErrorQuery, Reason: "list_failed"}, status: http.StatusBadRequest, code: string(usecase.ErrorQuery)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "boom"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, &stubArchiver{err: tc.err})

			resp, err := h.Handle(lambdaCtx("req-9"), json.RawMessage(`{"filter_query":"q","namespace_segment":"ns"}`))
			require.ErrorIs(t, err, tc.err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			require.Equal(t, "req-9", out.RunID)
		})
	}
}

func TestDecodeRequest_EnvelopeWithoutDetail(t *testing.T) {
	req, err := decodeRequest(json.RawMessage(`{"detail-type":"Scheduled Event","source":"aws.events","detail":{}}`))
	require.NoError(t, err)
	require.Equal(t, request{}, req)
}
