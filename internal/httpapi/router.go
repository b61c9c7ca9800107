package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

const subjectsPrefix = "/monitor/api/v1/subjects"

// RegisterSubjectRoutes 注册监控 API 路由
func (r *Router) RegisterSubjectRoutes(h *SubjectHandler) {
	r.Handle(subjectsPrefix, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ListSubjects(w, req)
	})

	// subjects/{id} 及其子资源
	r.Handle(subjectsPrefix+"/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, subjectsPrefix+"/")
		if rest == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		parts := strings.Split(rest, "/")
		subjectID := parts[0]

		switch {
		case len(parts) == 1:
			switch req.Method {
			case http.MethodGet:
				h.GetSubject(w, req, subjectID)
			case http.MethodDelete:
				h.RemoveSubject(w, req, subjectID)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		case len(parts) == 2 && parts[1] == "alerts":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.GetAlerts(w, req, subjectID)
		case len(parts) == 2 && parts[1] == "device-settings":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.PublishDeviceSettings(w, req, subjectID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	r.Handle("/monitor/api/v1/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
}
