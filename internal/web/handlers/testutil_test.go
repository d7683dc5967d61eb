package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/database/mock"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/recognition"
)

var errMock = errors.New("mock error")

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// fakeRecognizer returns a fixed image result.
type fakeRecognizer struct {
	result recognition.ImageResult
	calls  int
}

func (f *fakeRecognizer) RecognizeImage(_ context.Context, _ image.Image) recognition.ImageResult {
	f.calls++
	return f.result
}

// identified builds an image result where every id is an accepted face.
func identified(ids ...string) recognition.ImageResult {
	res := recognition.ImageResult{Status: recognition.Detected}
	for i, id := range ids {
		d := recognition.Decision{Kind: recognition.KindIdentified, StudentID: id, Ratio: 1}
		if id == recognition.LabelUnknown {
			d = recognition.Decision{Kind: recognition.KindUnknown, Ratio: 0}
		}
		res.Faces = append(res.Faces, recognition.FaceDecision{
			Box:      facematch.Box{X: i * 20, Y: 0, W: 16, H: 16},
			Decision: d,
		})
	}
	return res
}

// newTestService creates an attendance service over a mock ledger with the
// sample roster.
func newTestService(rec attendance.Recognizer) (*attendance.Service, *mock.MockLedger) {
	ledger := mock.NewMockLedger()
	ledger.AddStudent("3986", "Akinnusi Mary Hellen")
	ledger.AddStudent("1234", "John Doe")
	ledger.AddStudent("0529", "akande soji")
	svc := attendance.NewService(rec, ledger, testLogger)
	svc.SetClock(func() time.Time { return testNow })
	return svc, ledger
}

// pngBytes returns an encoded solid-color PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 200, G: 180, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

// multipartRequest creates a request with data in the given form field.
func multipartRequest(t *testing.T, path, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		part, err := mw.CreateFormFile(field, "photo.png")
		if err != nil {
			t.Fatalf("creating form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("writing form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses the JSON response body into the target
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
