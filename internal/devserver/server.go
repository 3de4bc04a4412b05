// Package devserver serves the notification REST contract from a local
// sqlite store, scoped to the recipient named by the bearer token. It
// exists to develop and test the client against a real HTTP backend.
package devserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nhle/crm-notify/internal/logger"
	"github.com/nhle/crm-notify/internal/store"
)

type ctxKey int

const recipientKey ctxKey = iota

// recentWindow bounds what Stats counts as recent.
const recentWindow = 24 * time.Hour

// Options configures a Server.
type Options struct {
	// PathPrefix is mounted in front of /notifications, e.g. "/api".
	PathPrefix string
	Logger     *zap.Logger
	// Now overrides the clock used for recent counts.
	Now func() time.Time
}

// Server implements the notification endpoints on top of a store.Store.
type Server struct {
	store  store.Store
	log    *zap.Logger
	now    func() time.Time
	prefix string
}

// New returns a server backed by st.
func New(st store.Store, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		store:  st,
		log:    logger.OrNop(opts.Logger),
		now:    opts.Now,
		prefix: strings.TrimSuffix(opts.PathPrefix, "/"),
	}
}

// Handler returns the routed handler with recovery, CORS and request
// logging applied.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.middlewareContentTypeSet)
	router.Use(s.middlewareLogging)

	api := router.PathPrefix(s.prefix + "/notifications").Subrouter()
	api.Use(s.middlewareAuth)

	getRouter := api.Methods(http.MethodGet).Subrouter()
	getRouter.HandleFunc("", s.listNotifications)
	getRouter.HandleFunc("/unread-count", s.unreadCount)
	getRouter.HandleFunc("/stats", s.stats)

	postRouter := api.Methods(http.MethodPost).Subrouter()
	postRouter.HandleFunc("/bulk", s.bulkAction)
	postRouter.HandleFunc("/mark-all-read", s.markAllRead)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})

	cors := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Request-ID"}),
	)
	recovery := gorillaHandlers.RecoveryHandler(
		gorillaHandlers.RecoveryLogger(zap.NewStdLog(s.log)),
	)
	return recovery(cors(router))
}

func (s *Server) middlewareContentTypeSet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) middlewareLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", r.Header.Get("X-Request-ID")),
			zap.Duration("took", time.Since(start)),
		)
	})
}

// middlewareAuth resolves the recipient from the bearer token.
func (s *Server) middlewareAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		ctx := context.WithValue(r.Context(), recipientKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recipientFrom(ctx context.Context) string {
	id, _ := ctx.Value(recipientKey).(string)
	return id
}
