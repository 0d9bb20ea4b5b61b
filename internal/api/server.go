package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"trafficmon/internal/alarm"
	"trafficmon/internal/config"
	"trafficmon/internal/counter"
	"trafficmon/internal/engine"
	"trafficmon/internal/metrics"
	"trafficmon/internal/model"
	"trafficmon/internal/monitor"
	"trafficmon/internal/policy"
	"trafficmon/internal/video"
)

// Server is the operator surface over the monitoring core. It only
// reads shared state or goes through each component's own interface;
// it never mutates anything directly.
type Server struct {
	cfg      *config.Manager
	counters *counter.Store
	policies *policy.Holder
	engine   *engine.Engine
	ledger   *alarm.Ledger
	loop     *monitor.Loop
	producer *video.Producer
	frames   *video.Buffer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	version  string

	placeholderOnce sync.Once
	placeholder     []byte
}

func Start(
	ctx context.Context,
	cfg *config.Manager,
	counters *counter.Store,
	policies *policy.Holder,
	eng *engine.Engine,
	ledger *alarm.Ledger,
	loop *monitor.Loop,
	producer *video.Producer,
	frames *video.Buffer,
	m *metrics.Metrics,
	logger *slog.Logger,
	version string,
) *http.Server {
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:      cfg,
		counters: counters,
		policies: policies,
		engine:   eng,
		ledger:   ledger,
		loop:     loop,
		producer: producer,
		frames:   frames,
		metrics:  m,
		logger:   logger,
		version:  version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", server.handleIndex)
	mux.HandleFunc("/api/stats/current", server.handleStats)
	mux.HandleFunc("/api/stats/reset", server.handleStatsReset)
	mux.HandleFunc("/api/thresholds", server.handleThresholds)
	mux.HandleFunc("/api/monitor/start", server.handleMonitorStart)
	mux.HandleFunc("/api/monitor/stop", server.handleMonitorStop)
	mux.HandleFunc("/api/monitor/interval", server.handleMonitorInterval)
	mux.HandleFunc("/api/alarms", server.handleAlarms)
	mux.HandleFunc("/api/alarms/clear", server.handleAlarmsClear)
	mux.HandleFunc("/api/alarms/reset", server.handleAlarmsReset)
	mux.HandleFunc("/api/alarms/", server.handleAlarmByID)
	mux.HandleFunc("/video_feed", server.handleVideoFeed)
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "running",
		"message":        "Traffic Monitoring Backend",
		"version":        s.version,
		"time":           time.Now().UTC().Format(time.RFC3339Nano),
		"monitoring":     s.loop.Running(),
		"streaming":      s.producer != nil && s.producer.Running(),
		"interval_sec":   int(s.loop.Interval().Seconds()),
		"policy_version": s.policies.Current().Version(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	now := time.Now().UTC()
	snap := s.counters.Snapshot(now)
	if crossed := s.engine.Crossed(snap, s.policies.Current(), now); len(crossed) > 0 {
		snap.ThresholdsCrossed = crossed
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"counts": map[string]any{
			"total": snap.Total,
			"in":    snap.In,
			"out":   snap.Out,
		},
		"rates":              snap.Rates,
		"thresholds_crossed": snap.ThresholdsCrossed,
		"processing_status":  snap.ProcessingStatus,
	})
}

func (s *Server) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.counters.Reset(time.Now().UTC())
	s.engine.Reset()
	if s.frames != nil {
		s.frames.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "statistics reset",
	})
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "success",
			"version":    s.policies.Current().Version(),
			"thresholds": s.policies.Current().Spec(),
		})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var spec policy.Spec
		if err := json.Unmarshal(body, &spec); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"status": "error", "message": "malformed thresholds payload",
			})
			return
		}
		if err := s.policies.Replace(r.Context(), spec); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"status": "error", "message": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "success",
			"message":    "thresholds updated",
			"version":    s.policies.Current().Version(),
			"thresholds": s.policies.Current().Spec(),
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.loop.Start(); err != nil {
		writeJSON(w, http.StatusConflict, map[string]any{
			"status": "error", "message": err.Error(),
		})
		return
	}
	if s.producer != nil {
		if err := s.producer.Start(); err != nil && s.logger != nil {
			s.logger.Warn("frame producer start skipped", "err", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "monitoring started",
	})
}

func (s *Server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.loop.Stop()
	if s.producer != nil {
		s.producer.Stop()
	}
	if s.frames != nil {
		s.frames.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "monitoring stopped",
	})
}

func (s *Server) handleMonitorInterval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		IntervalSec int `json:"interval_sec"`
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := json.Unmarshal(body, &req); err != nil || req.IntervalSec <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status": "error", "message": "interval_sec must be a positive integer",
		})
		return
	}
	applied := s.loop.SetInterval(time.Duration(req.IntervalSec) * time.Second)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"interval_sec": int(applied.Seconds()),
	})
}

func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var alarms []model.Alarm
		if r.URL.Query().Get("status") == "active" {
			alarms = s.ledger.ListActive()
		} else {
			alarms = s.ledger.ListAll()
		}
		order := r.URL.Query().Get("order")
		if order == "" {
			order = s.cfg.Get().API.AlarmOrder
		}
		if order == "desc" {
			for i, j := 0, len(alarms)-1; i < j; i, j = i+1, j-1 {
				alarms[i], alarms[j] = alarms[j], alarms[i]
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "success",
			"total":  len(alarms),
			"active": s.ledger.ActiveCount(),
			"alarms": alarms,
		})
	case http.MethodDelete:
		count := s.ledger.DeleteAll(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "success",
			"deleted_count": count,
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAlarmsClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AlarmIDs []string `json:"alarm_ids"`
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := json.Unmarshal(body, &req); err != nil || len(req.AlarmIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status": "error", "message": "no alarm IDs provided",
		})
		return
	}
	cleared := s.ledger.Clear(r.Context(), req.AlarmIDs)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"message":       fmt.Sprintf("%d alarms cleared", cleared),
		"cleared_count": cleared,
	})
}

func (s *Server) handleAlarmsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.ledger.Reset(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "all alarms cleared",
	})
}

func (s *Server) handleAlarmByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/alarms/")
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !s.ledger.Delete(r.Context(), id) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"status": "error", "message": "alarm not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "alarm deleted",
	})
}

// handleVideoFeed streams the latest frame as multipart MJPEG. The
// consumer pulls at the configured frame rate; when no frame has been
// produced yet a placeholder card is served instead.
func (s *Server) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	videoCfg := s.cfg.Get().Video
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.WriteHeader(http.StatusOK)

	if s.metrics != nil {
		s.metrics.StreamClients.Add(1)
		defer s.metrics.StreamClients.Add(-1)
	}

	fps := videoCfg.FPS
	if fps <= 0 {
		fps = 10
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
		payload := s.placeholderFrame(videoCfg)
		if s.frames != nil {
			if frame, ok := s.frames.Read(); ok {
				payload = frame.JPEG
				if s.metrics != nil {
					s.metrics.FrameReads.Add(1)
				}
			}
		}
		if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(payload)); err != nil {
			return
		}
		if _, err := w.Write(payload); err != nil {
			return
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) placeholderFrame(cfg config.VideoConfig) []byte {
	s.placeholderOnce.Do(func() {
		s.placeholder = video.Placeholder(cfg.Width, cfg.Height)
	})
	return s.placeholder
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
