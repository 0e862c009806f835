package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/iris-chat/internal/handler/chat"
	"github.com/zhouzirui/iris-chat/internal/handler/files"
	"github.com/zhouzirui/iris-chat/internal/service/ai"
	"github.com/zhouzirui/iris-chat/internal/service/transcript"
	"github.com/zhouzirui/iris-chat/pkg/utils"
)

// Deps 汇总助手服务端路由需要的依赖。
type Deps struct {
	Responder     ai.Responder
	History       *transcript.Service
	UploadDir     string
	PublicBaseURL string
	Logger        *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	chat.NewWebSocketHandler(deps.Responder, deps.History, deps.Logger).RegisterRoutes(r)
	files.New(deps.UploadDir, deps.PublicBaseURL, deps.Logger).RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// cors 允许任意来源访问，与移动端和本地调试保持一致。
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
