package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"snore-monitor-service/internal/models"
	"snore-monitor-service/internal/schema"
	"snore-monitor-service/internal/service/monitor"
	"snore-monitor-service/internal/service/session"
	"snore-monitor-service/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// storeError maps repository errors to a status code.
func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	log.Error().Err(err).Msg("Store query failed")
	writeError(w, http.StatusInternalServerError, errors.New("internal error"))
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func (a *API) readiness(w http.ResponseWriter, r *http.Request) {
	if err := a.Store.Ping(r.Context()); err != nil {
		log.Warn().Err(err).Msg("Readiness check failed")
		writeError(w, http.StatusServiceUnavailable, errors.New("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (a *API) monitorStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Monitor.Status())
}

func (a *API) monitorStart(w http.ResponseWriter, r *http.Request) {
	sess, err := a.Monitor.Start(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, sess)
	case errors.Is(err, session.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, monitor.ErrStartFailed):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type stopResponse struct {
	Stopped bool            `json:"stopped"`
	Session *models.Session `json:"session,omitempty"`
	Message string          `json:"message,omitempty"`
}

func (a *API) monitorStop(w http.ResponseWriter, r *http.Request) {
	sess, err := a.Monitor.Stop(r.Context())
	if err != nil {
		// The session is stopped either way; only finalize failed.
		log.Error().Err(err).Msg("Stop finished with error")
		writeJSON(w, http.StatusInternalServerError, stopResponse{Stopped: true, Session: sess, Message: err.Error()})
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusOK, stopResponse{Message: "nothing to stop"})
		return
	}
	writeJSON(w, http.StatusOK, stopResponse{Stopped: true, Session: sess})
}

func (a *API) getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Settings.Snapshot())
}

func (a *API) putSettings(w http.ResponseWriter, r *http.Request) {
	var upd schema.SettingsUpdate
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.Validator.Validate(upd); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if upd.Sensitivity != nil {
		a.Settings.SetSensitivity(*upd.Sensitivity)
	}
	if upd.MinDurationMs != nil {
		a.Settings.SetMinDuration(msDuration(*upd.MinDurationMs))
	}

	snap := a.Settings.Snapshot()
	log.Info().
		Int("sensitivity", snap.Sensitivity).
		Int64("minDurationMs", snap.MinDurationMs).
		Msg("Detection settings updated")
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) period(w http.ResponseWriter, r *http.Request) (models.TimePeriod, bool) {
	p, err := models.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return p, true
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := a.period(w, r)
	if !ok {
		return
	}
	from, to := p.Range(a.now())
	sessions, err := a.Store.QuerySessionsInRange(r.Context(), from, to)
	if err != nil {
		storeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := a.Store.GetSession(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if st := a.Monitor.Status(); st.Session != nil && st.Session.SessionID == id {
		writeError(w, http.StatusConflict, errors.New("session is still running"))
		return
	}

	paths, err := a.Store.DeleteSession(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", p).Msg("Failed to remove clip file")
		}
	}
	log.Info().Int64("sessionId", id).Int("clips", len(paths)).Msg("Session deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) sessionSamples(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	q := r.URL.Query()
	snoreOnly := q.Get("snore") == "true"

	var samples []models.AmplitudeSample
	switch {
	case q.Has("from") || q.Has("to"):
		from, to, err := msRange(q.Get("from"), q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		samples, err = a.Store.SamplesInRange(r.Context(), id, from, to)
		if err != nil {
			storeError(w, err)
			return
		}
		if snoreOnly {
			samples = onlySnores(samples)
		}
	case snoreOnly:
		samples, err = a.Store.SnoreSamplesForSession(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
	default:
		samples, err = a.Store.SamplesForSession(r.Context(), id)
		if err != nil {
			storeError(w, err)
			return
		}
	}
	if samples == nil {
		samples = []models.AmplitudeSample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

func (a *API) sessionRecordings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	recs, err := a.Store.RecordingsForSession(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	if recs == nil {
		recs = []models.Recording{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *API) recordingAudio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := a.Store.GetRecording(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	if _, err := os.Stat(rec.FilePath); err != nil {
		writeError(w, http.StatusNotFound, errors.New("clip file missing"))
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, rec.FilePath)
}

type statsResponse struct {
	Period models.TimePeriod `json:"period"`
	models.AggregateStats
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	p, ok := a.period(w, r)
	if !ok {
		return
	}
	from, to := p.Range(a.now())
	st, err := a.Store.QueryAggregateStats(r.Context(), from, to)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Period: p, AggregateStats: st})
}

func (a *API) dailyStats(w http.ResponseWriter, r *http.Request) {
	p, ok := a.period(w, r)
	if !ok {
		return
	}
	from, to := p.Range(a.now())
	counts, err := a.Store.QueryDailyCounts(r.Context(), from, to)
	if err != nil {
		storeError(w, err)
		return
	}
	if counts == nil {
		counts = []models.DailyCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

func onlySnores(samples []models.AmplitudeSample) []models.AmplitudeSample {
	out := samples[:0]
	for _, s := range samples {
		if s.IsSnore {
			out = append(out, s)
		}
	}
	return out
}
