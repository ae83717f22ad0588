// Package oauthcb serves the OAuth redirect target for command-line logins:
// a short-lived local HTTP listener that completes the handshake and hands
// the result back to the waiting command.
package oauthcb

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/folio-blog/folioctl/internal/apierr"
	"github.com/folio-blog/folioctl/internal/config"
	"github.com/folio-blog/folioctl/internal/logging"
	"github.com/folio-blog/folioctl/internal/session"
)

// Handshaker completes a login from the provider's redirect URL.
type Handshaker interface {
	Login(ctx context.Context, current *url.URL) (session.LoginResult, error)
}

// Options configures a Server.
type Options struct {
	Session Handshaker
	// CallbackURL is the registered redirect_uri; its host and path are served.
	CallbackURL string
	// SiteURL is where the browser goes after the handshake. When empty a
	// static page is shown instead.
	SiteURL string
	// ErrorRedirectDelay is how long the failure page stays before going home.
	ErrorRedirectDelay time.Duration
	Logger             *slog.Logger
}

// Server is a one-shot callback listener.
type Server struct {
	echo      *echo.Echo
	handshake Handshaker
	addr      string
	path      string
	siteURL   string
	delay     time.Duration
	logger    *slog.Logger
	results   chan outcome
}

type outcome struct {
	result session.LoginResult
	err    error
}

// New validates the callback URL and registers the callback route.
func New(opts Options) (*Server, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("callback server requires a session")
	}
	if opts.CallbackURL == "" {
		opts.CallbackURL = config.DefaultCallbackURL
	}
	u, err := url.Parse(opts.CallbackURL)
	if err != nil {
		return nil, fmt.Errorf("parse callback URL %q: %w", opts.CallbackURL, err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("callback URL %q must use http on a local address", opts.CallbackURL)
	}
	host := u.Hostname()
	if host != "localhost" {
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			return nil, fmt.Errorf("callback URL host %q is not a loopback address", host)
		}
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if opts.ErrorRedirectDelay <= 0 {
		opts.ErrorRedirectDelay = config.DefaultErrorRedirectDelay
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.StdLogger = log.New(logging.NewWriter(opts.Logger, logging.LevelWarn, "callback server"), "", 0)
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		handshake: opts.Session,
		addr:      net.JoinHostPort(host, port),
		path:      path,
		siteURL:   strings.TrimRight(opts.SiteURL, "/"),
		delay:     opts.ErrorRedirectDelay,
		logger:    opts.Logger,
		results:   make(chan outcome, 1),
	}
	e.GET(path, s.handleCallback)
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the listen address derived from the callback URL.
func (s *Server) Addr() string {
	return s.addr
}

// Run listens until the first handshake finishes or ctx is done, then shuts
// the listener down. The handshake error, if any, is returned as is.
func (s *Server) Run(ctx context.Context) (session.LoginResult, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return session.LoginResult{}, fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.echo.Listener = ln

	serveErr := make(chan error, 1)
	go func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	s.logger.Debug("callback listener started", "addr", s.addr, "path", s.path)

	var out outcome
	select {
	case out = <-s.results:
	case err := <-serveErr:
		if err == nil {
			err = http.ErrServerClosed
		}
		out.err = fmt.Errorf("callback listener stopped: %w", err)
	case <-ctx.Done():
		out.err = fmt.Errorf("waiting for login callback: %w", ctx.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("callback listener shutdown failed", "error", err)
	}
	return out.result, out.err
}

func (s *Server) handleCallback(c echo.Context) error {
	req := c.Request()
	q := req.URL.Query()
	if q.Get("error") == "" && (q.Get("code") == "" || q.Get("state") == "") {
		return s.renderFailure(c, http.StatusBadRequest, "The sign-in response is missing its authorization code.")
	}

	res, err := s.handshake.Login(req.Context(), req.URL)
	if err == nil && !res.Completed {
		err = fmt.Errorf("login did not complete")
	}
	s.deliver(outcome{result: res, err: err})

	if err != nil {
		s.logger.Warn("login callback failed", "error", err)
		status := http.StatusBadGateway
		msg := "Sign-in failed. Please try again."
		switch {
		case apierr.IsSecurity(err):
			status = http.StatusForbidden
			msg = "Sign-in could not be verified. Please start again."
		case errors.Is(err, session.ErrAuthorizationDenied):
			status = http.StatusUnauthorized
			msg = "Sign-in was cancelled."
		}
		return s.renderFailure(c, status, msg)
	}

	if s.siteURL == "" {
		return renderPage(c, http.StatusOK, page{
			Title:   "Signed in",
			Message: fmt.Sprintf("Signed in as %s. You can close this window.", res.Profile.Ref().DisplayName()),
		})
	}
	return c.Redirect(http.StatusFound, s.siteURL+res.ReturnPath)
}

// deliver hands the first outcome to Run; later callbacks are only logged.
func (s *Server) deliver(o outcome) {
	select {
	case s.results <- o:
	default:
		s.logger.Debug("ignoring repeated callback")
	}
}

func (s *Server) renderFailure(c echo.Context, status int, msg string) error {
	p := page{Title: "Sign-in failed", Message: msg}
	if s.siteURL != "" {
		p.RedirectURL = s.siteURL + "/"
		p.RedirectSeconds = int(s.delay.Round(time.Second) / time.Second)
	}
	return renderPage(c, status, p)
}

type page struct {
	Title           string
	Message         string
	RedirectURL     string
	RedirectSeconds int
}

var pageTemplate = template.Must(template.New("callback").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
{{- if .RedirectURL}}
<meta http-equiv="refresh" content="{{.RedirectSeconds}};url={{.RedirectURL}}">
{{- end}}
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{- if .RedirectURL}}
<p>Returning to <a href="{{.RedirectURL}}">the home page</a> in {{.RedirectSeconds}} seconds.</p>
{{- end}}
</body>
</html>
`))

func renderPage(c echo.Context, status int, p page) error {
	var b strings.Builder
	if err := pageTemplate.Execute(&b, p); err != nil {
		return fmt.Errorf("render callback page: %w", err)
	}
	return c.HTML(status, b.String())
}
