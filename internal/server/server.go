// Package server exposes a Registry over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/hedeqiang/telreg"
	"github.com/hedeqiang/telreg/broadcast"
	"github.com/hedeqiang/telreg/capability"
	tmw "github.com/hedeqiang/telreg/middleware"
	"github.com/hedeqiang/telreg/status"
	"github.com/hedeqiang/telreg/transport"
)

var log = logging.Logger("telreg/server")

// Config holds what the server needs to run.
type Config struct {
	Registry *telreg.Registry

	// Sticky answers /v1/sticky requests. Optional.
	Sticky *broadcast.Sticky

	// Metrics is reported by /v1/stats. Optional.
	Metrics *tmw.Metrics

	Addr    string
	Session transport.SessionConfig
}

// Server serves the registry endpoints.
type Server struct {
	reg      *telreg.Registry
	sticky   *broadcast.Sticky
	metrics  *tmw.Metrics
	addr     string
	session  transport.SessionConfig
	upgrader websocket.Upgrader
}

// New creates a server instance.
func New(cfg Config) *Server {
	return &Server{
		reg:     cfg.Registry,
		sticky:  cfg.Sticky,
		metrics: cfg.Metrics,
		addr:    cfg.Addr,
		session: cfg.Session,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handler returns the router with every endpoint mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		logRequests,
		bearerToken,
	)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/notify/{field}", s.handleNotify)
		r.Get("/listen", s.handleListen)
		r.Get("/dump", s.handleDump)
		r.Get("/sticky/{topic}", s.handleSticky)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// Serve listens on the configured address and blocks until ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln and blocks until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	log.Infof("serving telephony registry on http://%s", ln.Addr())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		log.Debug("shutting down server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	field := chi.URLParam(r, "field")

	var req transport.NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := applyNotify(s.reg, field, req); err != nil {
		switch {
		case errors.Is(err, telreg.ErrUnknownField):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, errBadRequest):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mask, err := status.ParseMask(q.Get("mask"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if mask.Empty() {
		http.Error(w, "mask is required", http.StatusBadRequest)
		return
	}
	notifyNow := false
	if v := q.Get("notify_now"); v != "" {
		if notifyNow, err = strconv.ParseBool(v); err != nil {
			http.Error(w, "invalid notify_now", http.StatusBadRequest)
			return
		}
	}
	codec, err := transport.CodecByName(q.Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	label := q.Get("label")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("upgrade failed: %v", err)
		return
	}

	ctx := r.Context()
	sess := transport.NewSession(ctx, conn, codec, s.session)
	stop := context.AfterFunc(ctx, sess.Close)
	defer stop()

	id := sess.ID()
	if label == "" {
		label = "remote-" + string(id)[:8]
	}

	err = s.reg.Listen(ctx, telreg.Subscription{
		ID:        id,
		Listener:  sess,
		Label:     label,
		Mask:      mask,
		NotifyNow: notifyNow,
	})
	if err != nil {
		log.Infof("listen %s rejected: %v", label, err)
		_ = sess.SendError(err)
		sess.Close()
		return
	}
	defer s.reg.Unlisten(id)

	log.Debugf("session %s (%s) connected mask=%s codec=%s", id, label, mask, codec.Name())
	err = sess.Serve(func(f transport.Frame) error {
		if f.Label != "" {
			label = f.Label
		}
		return s.reg.Listen(ctx, telreg.Subscription{
			ID:        id,
			Listener:  sess,
			Label:     label,
			Mask:      f.Mask,
			NotifyNow: f.NotifyNow,
		})
	})
	if err != nil {
		log.Debugf("session %s (%s): %v", id, label, err)
	}
	log.Debugf("session %s (%s) disconnected", id, label)
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "text"
	}

	report, err := s.reg.DumpState(r.Context())
	if err != nil {
		if errors.Is(err, telreg.ErrPermissionDenied) {
			http.Error(w, s.reg.DenialMessage(), http.StatusForbidden)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	switch format {
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := report.WriteText(w); err != nil {
			log.Debugf("dump write: %v", err)
		}
	case "json":
		writeJSON(w, report)
	case "yaml":
		w.Header().Set("Content-Type", "application/yaml")
		if err := yaml.NewEncoder(w).Encode(report); err != nil {
			log.Debugf("dump write: %v", err)
		}
	default:
		http.Error(w, "unknown format "+strconv.Quote(format), http.StatusBadRequest)
	}
}

func (s *Server) handleSticky(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	if s.sticky == nil {
		http.NotFound(w, r)
		return
	}
	a, ok := s.sticky.Last(topic)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, a)
}

// Stats is the body of /v1/stats.
type Stats struct {
	Subscribers int               `json:"subscribers"`
	Delivered   map[string]uint64 `json:"delivered,omitempty"`
	Failed      map[string]uint64 `json:"failed,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := Stats{Subscribers: len(s.reg.Subscribers())}
	if s.metrics != nil {
		c := s.metrics.Snapshot()
		st.Delivered = c.Delivered
		st.Failed = c.Failed
	}
	writeJSON(w, st)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("write json: %v", err)
	}
}

// bearerToken places the Authorization bearer token into the request
// context for capability checks.
func bearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok && tok != "" {
			r = r.WithContext(capability.WithToken(r.Context(), tok))
		}
		next.ServeHTTP(w, r)
	})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
