package files

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
)

func setupRouter(t *testing.T) (*chi.Mux, string) {
	dir := t.TempDir()
	r := chi.NewRouter()
	New(dir, "http://localhost:8000/", nil).RegisterRoutes(r)
	return r, dir
}

func uploadRequest(t *testing.T, name string, content []byte, mimeType string) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write err: %v", err)
	}
	_ = writer.WriteField("user_id", "user123")
	_ = writer.WriteField("chat_id", "chat456")
	_ = writer.WriteField("mime_type", mimeType)
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close err: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload-file", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadStoresFileAndServesIt(t *testing.T) {
	r, dir := setupRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, uploadRequest(t, "scan.png", []byte("PNG"), "image/png"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var got UploadResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if got.URL != "http://localhost:8000/files/scan.png" || got.MimeType != "image/png" || got.MimeTypeAlt != "image/png" || got.OriginalName != "scan.png" {
		t.Fatalf("unexpected response %+v", got)
	}

	stored, err := os.ReadFile(filepath.Join(dir, "scan.png"))
	if err != nil || string(stored) != "PNG" {
		t.Fatalf("stored file = %q err=%v", stored, err)
	}

	download := httptest.NewRecorder()
	r.ServeHTTP(download, httptest.NewRequest(http.MethodGet, "/files/scan.png", nil))
	body, _ := io.ReadAll(download.Body)
	if download.Code != http.StatusOK || string(body) != "PNG" {
		t.Fatalf("download = %d %q", download.Code, body)
	}
}

func TestUploadEmptyFileRejected(t *testing.T) {
	r, _ := setupRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, uploadRequest(t, "empty.txt", nil, "text/plain"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	var got map[string]string
	_ = json.Unmarshal(resp.Body.Bytes(), &got)
	if got["error"] != "Empty file uploaded" {
		t.Fatalf("unexpected body %v", got)
	}
}

func TestUploadWithoutFileRejected(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/upload-file", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd": "passwd",
		`..\\secret.txt`:   "secret.txt",
		"":                 "upload",
		"..":               "upload",
		"report.pdf":       "report.pdf",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Fatalf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
