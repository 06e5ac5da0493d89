package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"smsrelay/internal/constants"
	apperrors "smsrelay/internal/errors"
	"smsrelay/internal/metrics"
	"smsrelay/internal/middleware"
	"smsrelay/internal/models"
	"smsrelay/internal/privacy"
	"smsrelay/internal/relay"
	"smsrelay/internal/tracing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// EventSubmitter accepts events for asynchronous relay
type EventSubmitter interface {
	Submit(event models.IncomingEvent) error
	IsRunning() bool
}

type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	relay   EventSubmitter
	cfg     models.ServerConfig
	metrics *metrics.Registry
	server  *http.Server

	// baseCtx parents every request; cancelling it ends open streams,
	// which http.Server.Shutdown does not track once hijacked.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

func NewServer(cfg models.ServerConfig, submitter EventSubmitter, registry *metrics.Registry, logger *logrus.Logger) *Server {
	if registry == nil {
		registry = metrics.GetRegistry()
	}
	baseCtx, cancelBase := context.WithCancel(context.Background())
	s := &Server{
		router:     mux.NewRouter(),
		logger:     logger,
		relay:      submitter,
		cfg:        cfg,
		metrics:    registry,
		baseCtx:    baseCtx,
		cancelBase: cancelBase,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger, s.metrics, s.cfg.TrustProxyHeaders))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	events := s.router.PathPrefix("/v1/events").Subrouter()
	events.Use(middleware.RequireBearerToken(s.cfg.IngestToken, s.logger, s.cfg.TrustProxyHeaders))
	events.HandleFunc("", s.handleIngest()).Methods(http.MethodPost)
	events.HandleFunc("/stream", s.handleStream()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	port := s.cfg.Port
	if port == "" {
		port = fmt.Sprintf("%d", constants.DefaultServerPort)
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(constants.DefaultServerReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(constants.DefaultServerWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
		BaseContext:  func(net.Listener) context.Context { return s.baseCtx },
	}

	s.logger.Infof("Starting ingest server on port %s", port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cancelBase()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		if !s.relay.IsRunning() {
			status = http.StatusServiceUnavailable
			body["status"] = "relay stopped"
		}
		writeJSON(w, status, body)
	}
}

// ingestRequest is the wire form of an event. Content is a pointer so a
// missing field can be told apart from an empty message.
type ingestRequest struct {
	ID               string  `json:"id,omitempty"`
	Sender           string  `json:"sender"`
	Content          *string `json:"content"`
	Timestamp        int64   `json:"timestamp"`
	ReceiverAddress  string  `json:"receiver_address"`
	ReceiverDeviceID string  `json:"receiver_device_id"`
}

func (req ingestRequest) toEvent() (models.IncomingEvent, error) {
	if req.Content == nil {
		return models.IncomingEvent{}, apperrors.NewInvalidInputError("content", "content is required")
	}
	return models.IncomingEvent{
		Sender:           req.Sender,
		Content:          *req.Content,
		Timestamp:        req.Timestamp,
		ReceiverAddress:  req.ReceiverAddress,
		ReceiverDeviceID: req.ReceiverDeviceID,
	}, nil
}

type ingestResponse struct {
	ID        string `json:"id,omitempty"`
	Status    string `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleIngest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := tracing.GetRequestID(r.Context())
		r.Body = http.MaxBytesReader(w, r.Body, constants.MaxIngestBodyBytes)

		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				s.writeError(w, apperrors.NewInvalidInputError("body", "request body too large"), requestID)
				return
			}
			s.writeError(w, apperrors.NewInvalidInputError("body", "invalid JSON body"), requestID)
			return
		}

		if err := s.submit(req); err != nil {
			s.logger.WithFields(logrus.Fields{
				"request_id": requestID,
				"sender":     privacy.MaskSender(req.Sender),
			}).WithError(err).Warn("Rejected ingest event")
			s.writeError(w, err, requestID)
			return
		}

		writeJSON(w, http.StatusAccepted, ingestResponse{ID: req.ID, Status: "accepted", RequestID: requestID})
	}
}

func (s *Server) submit(req ingestRequest) error {
	event, err := req.toEvent()
	if err != nil {
		return err
	}
	return s.relay.Submit(event)
}

// handleStream accepts a websocket over which the event source pushes
// ingestRequest messages. Every message gets one ingestResponse ack.
func (s *Server) handleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := tracing.GetRequestID(r.Context())

		// The stream outlives the server's per-request timeouts
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.logger.WithError(err).WithField("request_id", requestID).Warn("Websocket upgrade failed")
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(constants.MaxIngestBodyBytes)

		s.metrics.IncrementCounter(metrics.WebSocketSessions, nil, "Ingest websocket sessions opened")
		logger := s.logger.WithField("request_id", requestID)
		logger.Info("Ingest stream opened")

		ctx := r.Context()
		accepted := 0
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				status := websocket.CloseStatus(err)
				if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
					logger.WithField("accepted", accepted).Info("Ingest stream closed")
				} else {
					logger.WithError(err).WithField("accepted", accepted).Warn("Ingest stream ended")
				}
				return
			}

			var ack ingestResponse
			var req ingestRequest
			if err := json.Unmarshal(data, &req); err != nil {
				ack = ingestResponse{Status: "rejected", Error: "invalid JSON message"}
			} else if err := s.submit(req); err != nil {
				ack = ingestResponse{ID: req.ID, Status: "rejected", Error: rejectReason(err, requestID)}
			} else {
				ack = ingestResponse{ID: req.ID, Status: "accepted"}
				accepted++
			}

			if err := wsjson.Write(ctx, conn, ack); err != nil {
				logger.WithError(err).Warn("Failed to write stream ack")
				return
			}
		}
	}
}

func rejectReason(err error, requestID string) string {
	if isUnavailable(err) {
		return "relay unavailable, retry later"
	}
	return apperrors.ToHTTPResponse(err, requestID).Error.Message
}

// isUnavailable reports errors the caller should retry later
func isUnavailable(err error) bool {
	return errors.Is(err, relay.ErrBusy) || errors.Is(err, relay.ErrNotRunning)
}

func (s *Server) writeError(w http.ResponseWriter, err error, requestID string) {
	status := apperrors.HTTPStatusCode(err)
	if isUnavailable(err) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, apperrors.ToHTTPResponse(err, requestID))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
