// Package upload sends attachment files to the assistant's side-channel
// endpoint as multipart requests.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultMimeType = "application/octet-stream"

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upload rejected with status %d", e.Code)
}

// FailureText renders err as the assistant-authored message shown in the
// conversation.
func FailureText(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("Upload failed: %d", statusErr.Code)
	}
	return fmt.Sprintf("Upload error: %s", err.Error())
}

// File is a local file handle selected by the user.
type File struct {
	// URI identifies the file locally; it becomes the attachment URL.
	URI      string
	Name     string
	MimeType string
	Open     func() (io.ReadCloser, error)
}

// LocalFile describes a file on disk, guessing its MIME type from the extension.
func LocalFile(path string) File {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	return File{
		URI:      "file://" + filepath.ToSlash(abs),
		Name:     filepath.Base(path),
		MimeType: mimeType,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// Result is the endpoint's success body.
type Result struct {
	URL          string `json:"url"`
	MimeType     string `json:"mimeType"`
	OriginalName string `json:"original_name"`
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		URL           string `json:"url"`
		MimeType      string `json:"mimeType"`
		MimeTypeSnake string `json:"mime_type"`
		OriginalName  string `json:"original_name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.URL = raw.URL
	r.MimeType = raw.MimeType
	if r.MimeType == "" {
		r.MimeType = raw.MimeTypeSnake
	}
	r.OriginalName = raw.OriginalName
	return nil
}

// Options configures a Client.
type Options struct {
	Endpoint   string
	UserID     string
	ChatID     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client uploads files for one user and chat.
type Client struct {
	endpoint string
	userID   string
	chatID   string
	http     *http.Client
	logger   *zap.Logger
}

// NewClient creates an upload client.
func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		endpoint: opts.Endpoint,
		userID:   opts.UserID,
		chatID:   opts.ChatID,
		http:     opts.HTTPClient,
		logger:   opts.Logger.Named("upload"),
	}
}

// Upload posts f with the user and chat identifiers. Non-2xx responses yield
// a *StatusError; everything else is a transport error.
func (c *Client) Upload(ctx context.Context, f File) (Result, error) {
	if f.Open == nil {
		return Result{}, errors.New("file has no content")
	}

	body, contentType, err := c.encode(f)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return Result{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("upload rejected",
			zap.String("file", f.Name),
			zap.Int("status", resp.StatusCode))
		return Result{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	var result Result
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &result); err != nil {
			return Result{}, fmt.Errorf("decoding upload response: %w", err)
		}
	}
	c.logger.Info("upload completed",
		zap.String("file", f.Name),
		zap.String("url", result.URL),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (c *Client) encode(f File) (io.Reader, string, error) {
	src, err := f.Open()
	if err != nil {
		return nil, "", fmt.Errorf("opening file: %w", err)
	}
	defer src.Close()

	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	name := f.Name
	if name == "" {
		name = "upload"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("reading file: %w", err)
	}
	for _, field := range [][2]string{
		{"user_id", c.userID},
		{"chat_id", c.chatID},
		{"mime_type", mimeType},
	} {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("writing %s: %w", field[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
