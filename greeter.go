package greeter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/vulcand/oxy/v2/buffer"
	"github.com/vulcand/oxy/v2/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultPort is the port the greeter listens on.
	DefaultPort = 3000
	// Message is the body returned for every request.
	Message = "Hello World, I am Nhung\n"

	tracerName = "github.com/tokuhirom/greeter"
)

// Config holds the values Start needs. It is never read from the environment.
type Config struct {
	Port    int
	Message string
	// Stdout receives the startup line.
	Stdout         io.Writer
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns port 3000, the greeting, os.Stdout and the global tracer provider.
func DefaultConfig() Config {
	return Config{
		Port:           DefaultPort,
		Message:        Message,
		Stdout:         os.Stdout,
		TracerProvider: otel.GetTracerProvider(),
	}
}

// BindError is returned by Start when the listening port cannot be acquired.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Server is a listening greeter. It is returned only after a successful bind.
type Server struct {
	httpServer *http.Server
	listener   net.Listener

	done     chan struct{}
	errMu    sync.Mutex
	serveErr error
}

// Handler answers every request with 200 and message, regardless of method, path, headers or body.
func Handler(message string, tp trace.TracerProvider) http.Handler {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "greeter.greet")
		defer span.End()

		w.WriteHeader(http.StatusOK)
		span.SetAttributes(attribute.Int("http.response.status_code", http.StatusOK))
		if _, err := io.WriteString(w, message); err != nil {
			log.Printf("failed to write response: %v\n", err)
		}
	})
}

// Start binds cfg.Port and serves the greeting in the background.
// The startup line is printed only once the listener is ready.
func Start(cfg Config) (*Server, error) {
	if cfg.Message == "" {
		cfg.Message = Message
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}

	// Drain every request body before the greeter runs, so it is read in full
	// even though nothing looks at it. No size limit: nothing is ever rejected.
	// A body that cannot be read still gets the greeting.
	greet := Handler(cfg.Message, cfg.TracerProvider)
	bufferHandler, err := buffer.New(greet,
		buffer.MemRequestBodyBytes(1<<20),
		buffer.ErrorHandler(utils.ErrorHandlerFunc(func(w http.ResponseWriter, r *http.Request, err error) {
			log.Printf("failed to read request body from %s: %v", r.RemoteAddr, err)
			greet.ServeHTTP(w, r)
		})),
	)
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("failed to create buffer handler: %w", err)
	}

	s := &Server{
		httpServer: &http.Server{
			Handler:           bufferHandler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			ErrorLog:          log.New(os.Stderr, "greeter: ", log.LstdFlags),
		},
		listener: ln,
		done:     make(chan struct{}),
	}

	if _, err := fmt.Fprintf(cfg.Stdout, "Server running on %s\n", s.URL()); err != nil {
		log.Printf("failed to write startup line: %v", err)
	}

	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	defer close(s.done)
	err := s.httpServer.Serve(s.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Greeter server terminated: %v", err)
		s.errMu.Lock()
		s.serveErr = err
		s.errMu.Unlock()
	}
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Port returns the bound port, which differs from Config.Port only when that was 0.
func (s *Server) Port() int {
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// URL returns the address announced in the startup line.
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d/", s.Port())
}

// Done is closed when the accept loop has stopped.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Err reports why the accept loop stopped, or nil if it is running or was shut down.
func (s *Server) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.serveErr
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-s.done
	return nil
}

// Close releases the port immediately, dropping active connections.
func (s *Server) Close() error {
	err := s.httpServer.Close()
	<-s.done
	return err
}
