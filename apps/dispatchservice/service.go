package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/andrej220/fanout/pkg/backend"
	"github.com/andrej220/fanout/pkg/lg"
	"github.com/andrej220/fanout/pkg/orchestrator"
	"github.com/andrej220/fanout/pkg/result"
	"github.com/andrej220/fanout/pkg/serverutil"
	dm "github.com/andrej220/fanout/pkg/shared-models"
	"github.com/andrej220/fanout/pkg/target"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// executionStore reads archived payloads back.
type executionStore interface {
	Get(ctx context.Context, id uuid.UUID) (json.RawMessage, error)
}

// publisher writes replies to the Kafka result topic.
type publisher interface {
	Publish(ctx context.Context, key []byte, v any, headers ...kafka.Header) error
}

type dispatchService struct {
	orch       *orchestrator.Orchestrator
	executions executionStore // nil when the archive is disabled
	results    publisher      // nil when Kafka results are disabled
	logger     lg.Logger
}

func newDispatchService(orch *orchestrator.Orchestrator, executions executionStore, results publisher, logger lg.Logger) *dispatchService {
	return &dispatchService{orch: orch, executions: executions, results: results, logger: logger}
}

func (s *dispatchService) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /inventory", s.listInventory)
	mux.HandleFunc("POST /inventory/reload", s.reloadInventory)
	mux.HandleFunc("GET /getters", s.listGetters)
	mux.HandleFunc("GET /capabilities", s.listCapabilities)
	mux.Handle("POST /dispatch", serverutil.NewValidationHandler[dm.DispatchRequest](http.HandlerFunc(s.dispatch)))
	mux.HandleFunc("GET /executions/{id}", s.getExecution)

	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		mux.ServeHTTP(rw, r.WithContext(lg.Attach(r.Context(), s.logger)))
		s.logger.Debug("Request served",
			lg.String("method", r.Method),
			lg.String("path", r.URL.Path),
			lg.Duration("elapsed", time.Since(start)))
	})
}

func statusOf(kind result.ErrorKind) int {
	switch kind {
	case result.KindValidation:
		return http.StatusBadRequest
	case result.KindNotFound:
		return http.StatusNotFound
	case result.KindLoad:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeFailure(rw http.ResponseWriter, err error) {
	re := result.AsError(err, result.KindLoad)
	serverutil.WriteError(rw, statusOf(re.Kind), string(re.Kind), re.Message)
}

func (s *dispatchService) listInventory(rw http.ResponseWriter, r *http.Request) {
	list, err := s.orch.ListTargets(r.Context())
	if err != nil {
		writeFailure(rw, err)
		return
	}
	serverutil.WriteJSON(rw, http.StatusOK, list)
}

func (s *dispatchService) reloadInventory(rw http.ResponseWriter, r *http.Request) {
	rep, err := s.orch.ReloadInventory(r.Context())
	if err != nil {
		writeFailure(rw, err)
		return
	}
	serverutil.WriteJSON(rw, http.StatusOK, dm.ReloadResponse{
		Version:  rep.Version,
		Hosts:    rep.Hosts,
		LoadedAt: rep.LoadedAt.UTC().Format(time.RFC3339),
	})
}

func (s *dispatchService) listGetters(rw http.ResponseWriter, _ *http.Request) {
	serverutil.WriteJSON(rw, http.StatusOK, s.orch.Getters())
}

func (s *dispatchService) listCapabilities(rw http.ResponseWriter, _ *http.Request) {
	serverutil.WriteJSON(rw, http.StatusOK, s.orch.Capabilities())
}

func (s *dispatchService) dispatch(rw http.ResponseWriter, r *http.Request) {
	req, ok := serverutil.RequestFrom[dm.DispatchRequest](r.Context())
	if !ok {
		serverutil.WriteError(rw, http.StatusInternalServerError, "internal_error", "request missing from context")
		return
	}
	p, err := s.run(r.Context(), req)
	if err != nil {
		writeFailure(rw, err)
		return
	}
	serverutil.WriteJSON(rw, http.StatusOK, p)
}

func (s *dispatchService) getExecution(rw http.ResponseWriter, r *http.Request) {
	if s.executions == nil {
		serverutil.WriteError(rw, http.StatusNotFound, string(result.KindNotFound), "execution archive is disabled")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		serverutil.WriteError(rw, http.StatusBadRequest, string(result.KindValidation), "invalid execution id")
		return
	}
	raw, err := s.executions.Get(r.Context(), id)
	if err != nil {
		writeFailure(rw, err)
		return
	}
	serverutil.WriteJSON(rw, http.StatusOK, raw)
}

// run maps a wire request onto the orchestrator. It serves both HTTP and Kafka intake.
func (s *dispatchService) run(ctx context.Context, req dm.DispatchRequest) (*result.Payload, error) {
	return s.orch.Dispatch(ctx, backend.Kind(req.Backend), orchestrator.Request{
		Operation: req.Operation,
		Target:    target.Selector{Host: req.Host, Group: req.Group},
		Args:      req.Args,
		Timeout:   time.Duration(req.TimeoutSeconds) * time.Second,
		ID:        req.RequestID,
	})
}

// handleMessage is the Kafka intake handler. Payloads leave through the
// configured sinks; a request rejected before dispatch is answered on the
// result topic with an ErrorResponse keyed by its request_id.
func (s *dispatchService) handleMessage(ctx context.Context, req dm.DispatchRequest) error {
	logger := lg.FromContext(ctx).With(lg.String("request_id", req.RequestID.String()))
	var p *result.Payload
	err := serverutil.Validate(req)
	if err != nil {
		err = result.Errorf(result.KindValidation, "invalid request: %v", err)
	} else {
		p, err = s.run(ctx, req)
	}
	if err != nil {
		if perr := s.reject(ctx, req.RequestID, err); perr != nil {
			return errors.Join(err, perr)
		}
		return err
	}
	logger.Info("Dispatch finished",
		lg.String("id", p.ID.String()),
		lg.String("outcome", string(p.Outcome)),
		lg.String("duration", p.Duration))
	return nil
}

func (s *dispatchService) reject(ctx context.Context, id uuid.UUID, err error) error {
	if s.results == nil {
		return nil
	}
	re := result.AsError(err, result.KindLoad)
	reply := dm.ErrorResponse{Error: string(re.Kind), Message: re.Message}
	if id != uuid.Nil {
		reply.RequestID = id.String()
	}
	if perr := s.results.Publish(ctx, id[:], reply, kafka.Header{Key: "outcome", Value: []byte("error")}); perr != nil {
		return fmt.Errorf("failed to publish rejection: %w", perr)
	}
	return nil
}
