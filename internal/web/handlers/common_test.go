package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondJSON(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		data     any
		wantBody string
	}{
		{"object", http.StatusOK, map[string]string{"status": "ok"}, `{"status":"ok"}` + "\n"},
		{"created", http.StatusCreated, []string{"1234"}, `["1234"]` + "\n"},
		{"nil data has empty body", http.StatusOK, nil, ""},
		{"empty map", http.StatusOK, map[string]string{}, "{}\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondJSON(recorder, tc.status, tc.data)

			assertStatusCode(t, recorder, tc.status)
			assertContentType(t, recorder, "application/json")
			if recorder.Body.String() != tc.wantBody {
				t.Errorf("expected body %q, got %q", tc.wantBody, recorder.Body.String())
			}
		})
	}
}

func TestRespondError(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError} {
		recorder := httptest.NewRecorder()
		respondError(recorder, status, "something went wrong")

		assertStatusCode(t, recorder, status)
		assertJSONError(t, recorder, "something went wrong")
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("1234\r\nINFO forged"); got != "1234INFO forged" {
		t.Errorf("sanitizeForLog = %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	recorder := httptest.NewRecorder()
	HealthCheck(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", result["status"])
	}
}

func TestReadUploadedImage(t *testing.T) {
	data, err := readUploadedImage(multipartRequest(t, "/", "image", []byte("payload")))
	if err != nil || string(data) != "payload" {
		t.Errorf("readUploadedImage = %q, %v", data, err)
	}

	if _, err := readUploadedImage(multipartRequest(t, "/", "other", []byte("x"))); err != errMissingImage {
		t.Errorf("wrong field: err = %v, want errMissingImage", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	if _, err := readUploadedImage(req); err == nil {
		t.Error("expected error for non-multipart request")
	}
}
