package serverutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrej220/fanout/pkg/lg"
	dm "github.com/andrej220/fanout/pkg/shared-models"
	"github.com/go-playground/validator/v10"
)

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Logger          lg.Logger
}

// DefaultServerConfig provides default server configuration values. The write
// timeout is generous because a dispatch answers only when every host is done.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Minute,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// RunServer serves handler until ctx ends or SIGINT/SIGTERM arrives, then
// shuts the server down gracefully.
func RunServer(ctx context.Context, handler http.Handler, config ServerConfig) error {
	logger := config.Logger
	if logger == nil {
		logger = lg.FromContext(ctx)
	}
	if config.Addr == "" {
		config.Addr = DefaultServerConfig().Addr
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultServerConfig().ShutdownTimeout
	}

	server := &http.Server{
		Addr:         config.Addr,
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return lg.Attach(context.Background(), logger) },
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", lg.String("addr", config.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("Server stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("Server stopped gracefully")
	return nil
}

type requestKey struct{}

var validate = validator.New()

// ValidationHandler is a middleware that decodes and validates incoming JSON requests.
type ValidationHandler[T any] struct {
	next   http.Handler
	checks []func(T) error
}

// NewValidationHandler creates a validation handler for the request type T.
// T is checked against its validate struct tags, then against every check.
func NewValidationHandler[T any](next http.Handler, checks ...func(T) error) http.Handler {
	return &ValidationHandler[T]{next: next, checks: checks}
}

// ServeHTTP decodes and validates the JSON request, passing it to the next handler via context.
func (h *ValidationHandler[T]) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var request T
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		WriteError(rw, http.StatusBadRequest, "validation_error", fmt.Sprintf("invalid request: %v", err))
		return
	}
	if err := Validate(request, h.checks...); err != nil {
		WriteError(rw, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	ctx := context.WithValue(r.Context(), requestKey{}, request)
	h.next.ServeHTTP(rw, r.WithContext(ctx))
}

// RequestFrom returns the request stored by ValidationHandler.
func RequestFrom[T any](ctx context.Context) (T, bool) {
	req, ok := ctx.Value(requestKey{}).(T)
	return req, ok
}

// Validate checks req against its validate struct tags, then against every check.
func Validate[T any](req T, checks ...func(T) error) error {
	if err := validate.Struct(req); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return err
		}
	}
	for _, check := range checks {
		if err := check(req); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON writes v with the given status.
func WriteJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	enc := json.NewEncoder(rw)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func WriteError(rw http.ResponseWriter, status int, kind, message string) {
	WriteJSON(rw, status, dm.ErrorResponse{Error: kind, Message: message})
}
