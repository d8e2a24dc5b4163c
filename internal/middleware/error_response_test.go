package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/finwise/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusConflict, model.NewConflictError("User already exists with this email"))

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	if raw["code"] != model.ErrCodeConflict {
		t.Errorf("code = %v, want %q", raw["code"], model.ErrCodeConflict)
	}
	if raw["message"] != "User already exists with this email" {
		t.Errorf("message = %v", raw["message"])
	}
	if raw["category"] != "auth" {
		t.Errorf("category = %v, want auth", raw["category"])
	}
	if raw["action"] == "" {
		t.Error("action should not be empty")
	}
	if raw["success"] != false {
		t.Errorf("success = %v, want false", raw["success"])
	}
	if _, ok := raw["details"]; ok {
		t.Error("details should be omitted when empty")
	}
}

// TestWriteErrorResponse_IncludesValidationDetails はフィールド単位の検証エラーが含まれることを検証する。
func TestWriteErrorResponse_IncludesValidationDetails(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusUnprocessableEntity, model.NewValidationError([]model.FieldError{
		{Field: "email", Message: "must be a valid email address"},
		{Field: "password", Message: "must be at least 6 characters"},
	}))

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeValidation {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeValidation)
	}
	if len(body.Details) != 2 || body.Details[0].Field != "email" {
		t.Errorf("details = %+v", body.Details)
	}
}

// TestInternalServerError_ReturnsSystemError は内部エラーが統一フォーマットで返ることを検証する。
func TestInternalServerError_ReturnsSystemError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
	if body.Category != "system" {
		t.Errorf("category = %q, want %q", body.Category, "system")
	}
}

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind model.ErrorKind
		want int
	}{
		{model.KindBadRequest, http.StatusBadRequest},
		{model.KindUnauthorized, http.StatusUnauthorized},
		{model.KindForbidden, http.StatusForbidden},
		{model.KindNotFound, http.StatusNotFound},
		{model.KindConflict, http.StatusConflict},
		{model.KindValidation, http.StatusUnprocessableEntity},
		{model.KindTooManyRequests, http.StatusTooManyRequests},
		{model.KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := StatusForKind(tt.kind); got != tt.want {
				t.Errorf("StatusForKind(%v) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}
