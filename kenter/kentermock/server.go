// Package kentermock serves a fake Kenter API and identity provider for local
// runs and tests.
package kentermock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/kenter-mqtt/infra/logger"
	"github.com/kilianp07/kenter-mqtt/kenter"
)

const (
	// TokenPath is the token endpoint relative to the server URL.
	TokenPath = "/connect/token"

	dayPattern = "GET /meetdata/v2/measurements/connections/{conn}/metering-points/{mp}/days/{y}/{m}/{d}"
	tokenTTL   = 3600
)

// Server answers token and daily measurement requests.
type Server struct {
	addr  string
	log   logger.Logger
	srv   *http.Server
	total *prometheus.CounterVec

	mu       sync.Mutex
	token    string
	issued   int
	statuses []int

	tokenRequests atomic.Int32
	dayRequests   atomic.Int32
}

// New creates a server listening on addr once started, with request metrics
// on the default registerer.
func New(addr string) *Server {
	return NewWithRegistry(addr, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a server registering its metrics on reg. A nil reg
// uses the default registerer.
func NewWithRegistry(addr string, reg prometheus.Registerer) *Server {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	log := logger.New("kenter-mock")
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kenter_mock_requests_total",
		Help: "Requests answered by the mock Kenter API",
	}, []string{"endpoint", "code"})
	if err := reg.Register(total); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if exist, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				total = exist
			} else {
				log.Errorf("existing collector for kenter_mock_requests_total has wrong type %T", are.ExistingCollector)
			}
		}
	}
	return &Server{addr: addr, log: log, total: total}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+TokenPath, s.handleToken)
	mux.HandleFunc(dayPattern, s.handleDay)
	return mux
}

// FailNext makes the next day requests answer with the given status codes,
// in order, before serving readings again.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, statuses...)
}

// Expire revokes the issued token so the next day request gets 401.
func (s *Server) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// TokenRequests counts the token endpoint calls.
func (s *Server) TokenRequests() int { return int(s.tokenRequests.Load()) }

// DayRequests counts the measurement endpoint calls.
func (s *Server) DayRequests() int { return int(s.dayRequests.Load()) }

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.tokenRequests.Add(1)
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		s.reply(w, "token", http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	id, _, ok := r.BasicAuth()
	if !ok {
		id = r.PostForm.Get("client_id")
	}
	if id == "" {
		s.reply(w, "token", http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	s.mu.Lock()
	s.issued++
	s.token = "mock-" + strconv.Itoa(s.issued)
	tok := s.token
	s.mu.Unlock()
	s.reply(w, "token", http.StatusOK, map[string]any{
		"access_token": tok,
		"token_type":   "Bearer",
		"expires_in":   tokenTTL,
	})
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	s.dayRequests.Add(1)
	s.mu.Lock()
	valid := s.token != "" && r.Header.Get("Authorization") == "Bearer "+s.token
	status := 0
	if valid && len(s.statuses) > 0 {
		status = s.statuses[0]
		s.statuses = s.statuses[1:]
	}
	s.mu.Unlock()

	switch {
	case !valid:
		s.reply(w, "day", http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	case status != 0:
		s.reply(w, "day", status, map[string]string{"error": http.StatusText(status)})
		return
	}
	day, err := time.Parse("2006-01-02", fmt.Sprintf("%s-%s-%s", r.PathValue("y"), r.PathValue("m"), r.PathValue("d")))
	if err != nil {
		s.reply(w, "day", http.StatusBadRequest, map[string]string{"error": "invalid date"})
		return
	}
	s.reply(w, "day", http.StatusOK, DayReadings(r.PathValue("conn"), r.PathValue("mp"), day))
}

func (s *Server) reply(w http.ResponseWriter, endpoint string, status int, body any) {
	s.total.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Errorf("write %s response: %v", endpoint, err)
	}
}

// DayReadings generates 96 quarter-hour readings for the consumption and
// feed-in channels of day.
func DayReadings(conn, mp string, day time.Time) kenter.DayResponse {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	resp := kenter.DayResponse{ConnectionID: conn, MeteringPointID: mp}
	for c, code := range []string{"16180", "16280"} {
		ch := kenter.ChannelData{Channel: code, Unit: "kWh"}
		for i := 0; i < 96; i++ {
			ts, _ := json.Marshal(start.Add(time.Duration(i) * 15 * time.Minute).Format(time.RFC3339))
			v := float64((i%8)+c) / 40
			ch.Measurements = append(ch.Measurements, kenter.Reading{Timestamp: ts, Value: &v})
		}
		resp.Channels = append(resp.Channels, ch)
	}
	return resp
}

// Addr returns the listening address once Start has been called.
func (s *Server) Addr() string { return s.addr }

// Start runs the HTTP server until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("shutdown server: %v", err)
		}
		cancel()
	}()
	s.log.Infof("mock Kenter API listening on %s", s.addr)
	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
