package oauth

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"cordctl/pkg/logging"
)

// DefaultCallbackPort is the local port the sign-in redirect lands on.
const DefaultCallbackPort = 53682

// CallbackTimeout bounds how long a sign-in waits for the user to finish in
// the browser.
const CallbackTimeout = 5 * time.Minute

//go:embed templates/callback_success.html
var successPage string

//go:embed templates/callback_error.html
var errorPage string

var (
	successTmpl = template.Must(template.New("success").Parse(successPage))
	errorTmpl   = template.Must(template.New("error").Parse(errorPage))
)

// CallbackResult carries the query parameters of the authorization redirect.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// IsError reports whether the authorization server redirected with an error
// instead of a code.
func (r *CallbackResult) IsError() bool {
	return r.Error != ""
}

// outcome is what WaitForCallback unblocks on: a parsed redirect or a server
// failure, never both.
type outcome struct {
	result *CallbackResult
	err    error
}

// CallbackServer is a short-lived loopback HTTP server that accepts exactly
// one authorization redirect and then shuts down. Later hits on the callback
// path are rejected.
type CallbackServer struct {
	port     int
	server   *http.Server
	outcomes chan outcome

	handleOnce sync.Once
	stopOnce   sync.Once
}

// NewCallbackServer creates a callback server for the given port. Port 0
// selects the default.
func NewCallbackServer(port int) *CallbackServer {
	if port == 0 {
		port = DefaultCallbackPort
	}
	return &CallbackServer{
		port:     port,
		outcomes: make(chan outcome, 1),
	}
}

// Start binds the loopback listener and begins serving. The server stops when
// the context is cancelled. It returns the redirect URI to put in the
// authorization request.
func (s *CallbackServer) Start(ctx context.Context) (string, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(s.port)))
	if err != nil {
		return "", fmt.Errorf("failed to listen for the sign-in redirect: %w", err)
	}
	s.port = listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleRedirect)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deliver(outcome{err: err})
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logging.Debug("Auth", "Callback server listening on port %d", s.port)
	return s.RedirectURI(), nil
}

// WaitForCallback blocks until the redirect arrives, the server fails, or the
// context is cancelled.
func (s *CallbackServer) WaitForCallback(ctx context.Context) (*CallbackResult, error) {
	select {
	case o := <-s.outcomes:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleRedirect accepts the first callback hit and rejects the rest.
func (s *CallbackServer) handleRedirect(w http.ResponseWriter, r *http.Request) {
	accepted := false
	s.handleOnce.Do(func() {
		accepted = true
		s.complete(w, redirectResult(r))
	})
	if !accepted {
		http.Error(w, "Sign-in already completed", http.StatusBadRequest)
	}
}

// redirectResult extracts the authorization response parameters.
func redirectResult(r *http.Request) *CallbackResult {
	q := r.URL.Query()
	return &CallbackResult{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}

// complete renders the closing page, hands the result to the waiter, and
// schedules shutdown once the response has had time to flush.
func (s *CallbackServer) complete(w http.ResponseWriter, result *CallbackResult) {
	writeSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	var renderErr error
	if result.IsError() {
		renderErr = errorTmpl.Execute(w, map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		})
	} else {
		renderErr = successTmpl.Execute(w, nil)
	}
	if renderErr != nil {
		logging.Warn("Auth", "Failed to render the sign-in page: %v", renderErr)
	}

	s.deliver(outcome{result: result})
	time.AfterFunc(time.Second, s.Stop)
}

func writeSecurityHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", "no-store")
}

// deliver hands an outcome to the waiter without blocking. Only the first
// outcome counts.
func (s *CallbackServer) deliver(o outcome) {
	select {
	case s.outcomes <- o:
	default:
	}
}

// Stop shuts the server down. Safe to call more than once.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		if s.server == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			logging.Debug("Auth", "Callback server shutdown: %v", err)
		}
	})
}

// RedirectURI returns the callback URL registered with the authorization
// request.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/callback", s.port)
}

// Port returns the bound port, resolved after Start when 0 was requested.
func (s *CallbackServer) Port() int {
	return s.port
}
