package httpapp

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/erpbridge/erpbridge/internal/http/authn"
	"github.com/erpbridge/erpbridge/internal/http/handlers"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

const readHeaderTimeout = 5 * time.Second

// EchoServer is the HTTP server wrapper.
type EchoServer struct {
	h *handlers.Handlers
	e *echo.Echo
}

// NewEchoServer creates the HTTP server. h.Sessions must be set.
func NewEchoServer(h *handlers.Handlers) *EchoServer {
	if h.Sessions == nil {
		h.Sessions = scs.New()
	}
	es := &EchoServer{h: h, e: echo.New()}
	es.e.HTTPErrorHandler = es.httpErrorHandler
	es.e.Use(requestID)
	es.registerRoutes()
	return es
}

func (es *EchoServer) registerRoutes() {
	es.e.GET("/healthz", es.h.HandleHealthz)

	es.e.GET("/auth/:provider", es.h.HandleAuthStart)
	es.e.GET("/auth/:provider/callback", es.h.HandleAuthCallback)

	api := es.e.Group("/api")
	api.GET("/providers", es.h.HandleProviders)
	api.POST("/credentials/:id/refresh", es.h.HandleRefresh, authn.RequireCredential(es.h.Credentials))
	api.GET("/:provider/modules", es.h.HandleModules)
	api.GET("/:provider/:module", es.h.HandleModuleData)
}

// Handler returns the routes wrapped with session loading.
func (es *EchoServer) Handler() http.Handler {
	return es.h.Sessions.LoadAndSave(es.e)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (es *EchoServer) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           es.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := strings.TrimSpace(c.Request().Header.Get(echo.HeaderXRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(handlers.ContextKeyRequestID, id)
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		return next(c)
	}
}

type statusCoder interface {
	StatusCode() int
}

func httpStatusFromError(err error) int {
	if sc, ok := err.(statusCoder); ok {
		if code := sc.StatusCode(); code != 0 {
			return code
		}
	}
	return http.StatusInternalServerError
}

// httpErrorHandler answers errors that escaped the handlers, such as unknown routes.
func (es *EchoServer) httpErrorHandler(c *echo.Context, err error) {
	if err == nil {
		return
	}
	status := httpStatusFromError(err)
	if status == http.StatusInternalServerError {
		_ = es.h.RenderError(c, err)
		return
	}
	_ = c.JSON(status, map[string]string{"error": strings.ToLower(http.StatusText(status))})
}
