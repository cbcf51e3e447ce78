package server

import (
	"context"
	"errors"
	"net/http"

	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/ShravaniMogali/4GB-sub001/internal/config"
	"github.com/ShravaniMogali/4GB-sub001/internal/handlers"
	"github.com/ShravaniMogali/4GB-sub001/internal/models"
)

var log = logging.Logger("server")

// Server represents the HTTP server instance
type Server struct {
	echo   *echo.Echo
	config *config.Config
}

// NewServer creates the echo instance with middleware and routes configured
func NewServer(cfg *config.Config, h *handlers.Handlers) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	if cfg.Server.ReadTimeout > 0 {
		e.Server.ReadTimeout = cfg.Server.ReadTimeout
		e.Server.ReadHeaderTimeout = cfg.Server.ReadTimeout
		e.Server.IdleTimeout = cfg.Server.ReadTimeout
	}
	// writes block until the ledger mines the transaction, so this must exceed
	// the ledger submit timeout
	if cfg.Server.WriteTimeout > 0 {
		e.Server.WriteTimeout = cfg.Server.WriteTimeout
	}

	h.RegisterRoutes(e)

	return &Server{echo: e, config: cfg}
}

// Start registers lifecycle hooks that run and gracefully stop the server
func Start(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			addr := s.config.Server.Address()
			go func() {
				log.Infow("Starting HTTP server", "address", addr)
				if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("HTTP server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return s.echo.Shutdown(ctx)
		},
	})
}

// Echo returns the underlying Echo instance
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// errorHandler renders framework errors (unknown route, bad method, panics)
// in the same shape as handler errors.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	} else {
		log.Errorw("Unhandled error", "path", c.Path(), "error", err)
	}

	class := models.ErrorInternal
	switch {
	case code == http.StatusNotFound:
		class = models.ErrorNotFound
	case code == http.StatusUnauthorized:
		class = models.ErrorAuth
	case code == http.StatusForbidden:
		class = models.ErrorForbidden
	case code < http.StatusInternalServerError:
		class = models.ErrorValidation
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = c.JSON(code, models.ErrorResponse{Error: class, Message: message, Code: code})
	}
	if werr != nil {
		log.Errorw("Writing error response", "error", werr)
	}
}
