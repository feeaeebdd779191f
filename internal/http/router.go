// Package http exposes the monitor, its history and its live event feed over
// HTTP.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"snore-monitor-service/internal/config"
	"snore-monitor-service/internal/models"
	"snore-monitor-service/internal/schema"
	"snore-monitor-service/internal/service/monitor"
)

// Monitor is the session control the API drives.
type Monitor interface {
	Start(ctx context.Context) (models.Session, error)
	Stop(ctx context.Context) (*models.Session, error)
	Status() monitor.Status
}

// Store is the history the API reads.
type Store interface {
	GetSession(ctx context.Context, id int64) (models.Session, error)
	QuerySessionsInRange(ctx context.Context, from, to time.Time) ([]models.Session, error)
	DeleteSession(ctx context.Context, id int64) ([]string, error)
	SamplesForSession(ctx context.Context, sessionID int64) ([]models.AmplitudeSample, error)
	SamplesInRange(ctx context.Context, sessionID, fromMs, toMs int64) ([]models.AmplitudeSample, error)
	SnoreSamplesForSession(ctx context.Context, sessionID int64) ([]models.AmplitudeSample, error)
	RecordingsForSession(ctx context.Context, sessionID int64) ([]models.Recording, error)
	GetRecording(ctx context.Context, id int64) (models.Recording, error)
	QueryAggregateStats(ctx context.Context, from, to time.Time) (models.AggregateStats, error)
	QueryDailyCounts(ctx context.Context, from, to time.Time) ([]models.DailyCount, error)
	Ping(ctx context.Context) error
}

// API holds the handler dependencies.
type API struct {
	Monitor   Monitor
	Store     Store
	Settings  *config.Settings
	Validator *schema.Validator
	Hub       *Hub

	now func() time.Time
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(api *API) http.Handler {
	if api.now == nil {
		api.now = time.Now
	}
	if api.Validator == nil {
		api.Validator = schema.New()
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", api.readiness)

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/monitor", api.monitorStatus)
		r.Post("/monitor/start", api.monitorStart)
		r.Post("/monitor/stop", api.monitorStop)

		r.Get("/settings", api.getSettings)
		r.Put("/settings", api.putSettings)

		r.Get("/sessions", api.listSessions)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", api.getSession)
			r.Delete("/", api.deleteSession)
			r.Get("/samples", api.sessionSamples)
			r.Get("/recordings", api.sessionRecordings)
		})
		r.Get("/recordings/{id}/audio", api.recordingAudio)

		r.Get("/stats", api.stats)
		r.Get("/stats/daily", api.dailyStats)

		if api.Hub != nil {
			r.Handle("/events", api.Hub)
		}
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
