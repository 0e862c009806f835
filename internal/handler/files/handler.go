package files

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/iris-chat/pkg/utils"
)

const maxUploadBytes = 32 << 20

// Handler 处理附件上传与静态文件访问。
type Handler struct {
	dir           string
	publicBaseURL string
	logger        *zap.Logger
}

// New 创建文件处理器，上传的文件保存在 dir 下。
func New(dir, publicBaseURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		dir:           dir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger.Named("files"),
	}
}

// RegisterRoutes 注册上传与下载路由。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/upload-file", h.handleUpload)
	r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(h.dir))))
}

// UploadResponse 是上传成功后的响应体，mime 类型同时提供两种命名。
type UploadResponse struct {
	URL          string `json:"url"`
	MimeType     string `json:"mimeType"`
	MimeTypeAlt  string `json:"mime_type"`
	OriginalName string `json:"original_name"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if len(content) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "Empty file uploaded")
		return
	}

	name := sanitizeName(header.Filename)
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		h.logger.Error("failed to create upload dir", zap.String("dir", h.dir), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	if err := os.WriteFile(filepath.Join(h.dir, name), content, 0o644); err != nil {
		h.logger.Error("failed to store upload", zap.String("name", name), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	mimeType := strings.TrimSpace(r.FormValue("mime_type"))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	h.logger.Info("file uploaded",
		zap.String("name", name),
		zap.Int("bytes", len(content)),
		zap.String("user", r.FormValue("user_id")),
		zap.String("chat", r.FormValue("chat_id")))

	utils.RespondJSON(w, http.StatusOK, UploadResponse{
		URL:          h.publicBaseURL + "/files/" + url.PathEscape(name),
		MimeType:     mimeType,
		MimeTypeAlt:  mimeType,
		OriginalName: header.Filename,
	})
}

// sanitizeName 去掉目录部分，防止写出上传目录。
func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "upload"
	}
	return name
}
