package server

import (
	"net/http"

	"metamirror/internal/utils"
	"metamirror/pkg/engine"
	"metamirror/pkg/storage"
)

type Server struct {
	Engine   *engine.Engine
	Username string
	Password string
}

func New(eng *engine.Engine, user, pass string) *Server {
	return &Server{
		Engine:   eng,
		Username: user,
		Password: pass,
	}
}

// resource maps a URL segment to an entity kind. All three resources share
// one handler set; the engine's descriptors carry the per-kind differences.
type resource struct {
	path string
	kind storage.Kind
}

var resources = []resource{
	{"campaigns", storage.KindCampaign},
	{"ad-sets", storage.KindAdSet},
	{"ads", storage.KindAd},
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// API Group
	for _, rs := range resources {
		base := "/api/" + rs.path
		mux.HandleFunc("GET "+base, s.basicAuth(s.handleList(rs.kind)))
		mux.HandleFunc("POST "+base, s.basicAuth(s.handleCreate(rs.kind)))
		mux.HandleFunc("GET "+base+"/{id}", s.basicAuth(s.handleGet(rs.kind)))
		mux.HandleFunc("PUT "+base+"/{id}", s.basicAuth(s.handleUpdate(rs.kind)))
		mux.HandleFunc("DELETE "+base+"/{id}", s.basicAuth(s.handleDelete(rs.kind)))
		mux.HandleFunc("PATCH "+base+"/{id}/status", s.basicAuth(s.handleStatus(rs.kind)))
	}

	// Child listings
	mux.HandleFunc("GET /api/campaigns/{id}/ad-sets", s.basicAuth(s.handleChildren(storage.KindAdSet)))
	mux.HandleFunc("GET /api/ad-sets/{id}/ads", s.basicAuth(s.handleChildren(storage.KindAd)))

	return mux
}

func (s *Server) Start(addr string) error {
	utils.Log.Infof("Starting server on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
