package server

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/quotient-app/quotient/internal/auth"
	"github.com/quotient-app/quotient/internal/delivery"
	"github.com/quotient-app/quotient/internal/handlers"
	"github.com/quotient-app/quotient/internal/httpx"
	"github.com/quotient-app/quotient/internal/lifecycle"
	"github.com/quotient-app/quotient/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Deps bundles the collaborators the router wires into handlers.
type Deps struct {
	DB   *gorm.DB
	IDs  *snowflake.Node
	Svc  *lifecycle.Service
	PDF  handlers.Converter
	Mail delivery.Mailer
	Log  zerolog.Logger
}

// New constructs the root http.Handler with all routes and middlewares applied.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()

	// RequireAuth re-checks that the session's account still exists.
	auth.SetAccountVerifier(func(_ context.Context, id snowflake.ID) bool {
		var count int64
		if err := d.DB.Model(&models.Account{}).Where("id = ?", id).Limit(1).Count(&count).Error; err != nil {
			return false
		}
		return count > 0
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := d.DB.Exec("SELECT 1").Error; err != nil {
			httpx.JSONError(w, http.StatusServiceUnavailable, "degraded", nil)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	ah := handlers.NewAuthHandler(d.DB, d.IDs)
	mux.HandleFunc("/register", post(ah.Register))
	mux.HandleFunc("/login", post(ah.Login))
	mux.HandleFunc("/logout", post(ah.Logout))

	acct := handlers.NewAccountHandler(d.DB)
	mux.Handle("/account", protect(listCreate(acct.Profile, acct.Update)))

	ch := handlers.NewClientHandler(d.DB, d.IDs)
	mux.Handle("/clients", protect(listCreate(ch.List, ch.Create)))
	mux.Handle("/clients/get", protect(http.HandlerFunc(ch.Get)))
	mux.Handle("/clients/update", protect(post(ch.Update)))

	th := handlers.NewTemplateHandler(d.DB, d.IDs)
	mux.Handle("/templates", protect(listCreate(th.List, th.Create)))
	mux.Handle("/templates/get", protect(http.HandlerFunc(th.Get)))
	mux.Handle("/templates/update", protect(post(th.Update)))
	mux.Handle("/templates/delete", protect(post(th.Delete)))

	dh := handlers.NewDocumentHandler(d.DB, d.Svc, d.PDF, d.Mail, d.Log)
	mux.Handle("/documents", protect(listCreate(dh.List, dh.Create)))
	mux.Handle("/documents/get", protect(http.HandlerFunc(dh.Get)))
	mux.Handle("/documents/revise", protect(post(dh.Revise)))
	mux.Handle("/documents/send", protect(post(dh.Send)))
	mux.Handle("/documents/transition", protect(post(dh.Transition)))
	mux.Handle("/documents/render", protect(http.HandlerFunc(dh.Render)))
	mux.Handle("/documents/pdf", protect(http.HandlerFunc(dh.PDFExport)))
	mux.Handle("/documents/history", protect(http.HandlerFunc(dh.History)))
	mux.Handle("/documents/versions", protect(http.HandlerFunc(dh.Versions)))

	ph := handlers.NewPublicHandler(d.Svc, d.Log)
	mux.HandleFunc("/p/view", ph.View)
	mux.HandleFunc("/p/decision", post(ph.Decision))

	return withRecover(withLogging(mux, d.Log), d.Log)
}

func protect(next http.Handler) http.Handler {
	return auth.Middleware(auth.RequireAuth(next))
}

func post(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
			return
		}
		fn(w, r)
	}
}

func listCreate(list, create http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			list(w, r)
		case http.MethodPost:
			create(w, r)
		default:
			w.Header().Set("Allow", "GET,POST")
			httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		}
	}
}

func withLogging(next http.Handler, log zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func withRecover(next http.Handler, log zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("request panicked")
				httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
