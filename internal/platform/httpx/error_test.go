package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/recophone/api/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	rec := httptest.NewRecorder()

	err := NewError("step_invalid", "step\ninvalid", http.StatusUnprocessableEntity).
		WithDetails(map[string]any{"reasons": []string{"email"}, "status": 999})
	WriteError(ctx, rec, err)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body map[string]any
	if decodeErr := json.Unmarshal(rec.Body.Bytes(), &body); decodeErr != nil {
		t.Fatalf("decode: %v", decodeErr)
	}
	if body["error"] != "step_invalid" || body["message"] != "step invalid" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["trace_id"] != "abc123" {
		t.Fatalf("expected trace id, got %v", body["trace_id"])
	}
	if body["status"] != float64(http.StatusUnprocessableEntity) {
		t.Fatalf("details must not override reserved fields, got %v", body["status"])
	}
	if _, ok := body["reasons"]; !ok {
		t.Fatalf("expected reasons detail")
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Jane"}`))
	if err := DecodeJSON(req, &dst, 0, false); err != nil || dst.Name != "Jane" {
		t.Fatalf("unexpected decode result %v %q", err, dst.Name)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := DecodeJSON(req, &dst, 0, true); err != nil {
		t.Fatalf("empty body should be allowed: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"toolong"}`))
	if err := DecodeJSON(req, &dst, 4, false); err == nil {
		t.Fatalf("expected oversized body to fail")
	}
}

func TestWriteErrorKeepsRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-7")
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("rate_limited", strings.Repeat("x", 600), http.StatusTooManyRequests).
		WithDetails(map[string]any{"request_id": "spoofed", "retryAfter": 30}))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["request_id"] != "req-7" {
		t.Fatalf("expected request id from context, got %v", body["request_id"])
	}
	if len(body["message"].(string)) != maxMessageLen {
		t.Fatalf("expected message truncated to %d", maxMessageLen)
	}
	if body["retryAfter"] != float64(30) {
		t.Fatalf("expected retryAfter detail, got %v", body["retryAfter"])
	}
}
