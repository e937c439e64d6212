package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrEthical07/tokengate"
	"github.com/MrEthical07/tokengate/internal/logger"
	"github.com/MrEthical07/tokengate/middleware"
)

// Engine is the part of *tokengate.Engine the HTTP layer calls.
type Engine interface {
	middleware.Authorizer
	Login(ctx context.Context, email, password string) (*tokengate.Session, error)
	Register(ctx context.Context, req tokengate.RegisterRequest) (*tokengate.Session, error)
	LoginWithIdentity(ctx context.Context, provider string, identity tokengate.ExternalIdentity) (*tokengate.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*tokengate.Session, error)
	Logout(ctx context.Context, req tokengate.LogoutRequest) tokengate.LogoutResult
	User(ctx context.Context, userID string) (tokengate.User, error)
}

// Options configures New. Zero values fall back to the defaults noted per field.
type Options struct {
	// Logger is the base request logger. Defaults to slog.Default.
	Logger *slog.Logger
	// Exchanger turns an OAuth authorization code into a verified identity. Without it
	// the oauth endpoint answers 501.
	Exchanger OAuthExchanger
	// MetricsHandler is mounted at GET /metrics when set.
	MetricsHandler http.Handler
	// Registerer receives the HTTP instrumentation. Nil disables it.
	Registerer prometheus.Registerer
	// AuthRate and AuthBurst size the per-IP token bucket on /api/auth. A zero rate
	// disables the bucket.
	AuthRate  float64
	AuthBurst int
	// BodyLimit is an echo size string such as "64KB". Defaults to 64KB.
	BodyLimit string
	// Ready reports whether the backing stores are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

// New builds the echo instance serving engine.
func New(engine Engine, opts Options) (*echo.Echo, error) {
	if engine == nil {
		return nil, tokengate.ErrEngineNotReady
	}
	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	if opts.BodyLimit == "" {
		opts.BodyLimit = "64KB"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = errorHandler

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestContext(base))
	if opts.Registerer != nil {
		m, err := newHTTPMetrics(opts.Registerer)
		if err != nil {
			return nil, fmt.Errorf("httpapi: register metrics: %w", err)
		}
		e.Use(m.middleware())
	}
	e.Use(requestLogger())
	e.Use(echomw.BodyLimit(opts.BodyLimit))
	e.Use(echo.WrapMiddleware(middleware.Gate(engine)))

	h := &handler{engine: engine, exchanger: opts.Exchanger, ready: opts.Ready}

	e.GET("/healthz", h.health)
	if opts.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(opts.MetricsHandler))
	}

	auth := e.Group("/api/auth")
	if opts.AuthRate > 0 {
		burst := opts.AuthBurst
		if burst <= 0 {
			burst = 1
		}
		auth.Use(newIPLimiter(opts.AuthRate, burst, nil).middleware())
	}
	auth.POST("/login", h.login)
	auth.POST("/register", h.register)
	auth.POST("/refresh", h.refresh)
	auth.POST("/logout", h.logout)
	auth.POST("/oauth/:provider", h.oauth)
	auth.GET("/me", h.me)

	return e, nil
}

// requestContext puts the client address and a request-scoped logger on the request
// context so the engine and handlers see both.
func requestContext(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			l := base.With(slog.String("request_id", requestID))

			ctx := logger.WithContext(c.Request().Context(), l)
			ctx = tokengate.WithClientIP(ctx, c.RealIP())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:   true,
		LogMethod:   true,
		LogURI:      true,
		LogError:    true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			ctx := c.Request().Context()
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			level := slog.LevelInfo
			if v.Error != nil && v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
				attrs = append(attrs, slog.String("err", v.Error.Error()))
			}
			logger.FromContext(ctx).LogAttrs(ctx, level, "http request", attrs...)
			return nil
		},
	})
}

type errorResponse struct {
	middleware.ErrorBody
	Details []FieldError `json:"details,omitempty"`
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var verr ValidationError
	if errors.As(err, &verr) {
		body := middleware.Body(tokengate.ErrInvalidRequest)
		body.Message = "One or more fields failed validation"
		send(c, http.StatusBadRequest, errorResponse{ErrorBody: body, Details: verr.Errors})
		return
	}

	var herr *echo.HTTPError
	if errors.As(err, &herr) {
		send(c, herr.Code, errorResponse{ErrorBody: httpErrorBody(herr)})
		return
	}

	status := middleware.StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request().Context()).Error("request failed",
			slog.String("path", c.Path()),
			slog.String("err", err.Error()),
		)
	}
	if status == http.StatusUnauthorized {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="api"`)
	}
	send(c, status, errorResponse{ErrorBody: middleware.Body(err)})
}

func httpErrorBody(herr *echo.HTTPError) middleware.ErrorBody {
	msg := fmt.Sprint(herr.Message)
	switch herr.Code {
	case http.StatusBadRequest:
		return middleware.ErrorBody{Error: "InvalidRequest", Message: "Malformed request body"}
	case http.StatusNotFound:
		return middleware.ErrorBody{Error: "NotFound", Message: msg}
	case http.StatusMethodNotAllowed:
		return middleware.ErrorBody{Error: "MethodNotAllowed", Message: msg}
	case http.StatusRequestEntityTooLarge:
		return middleware.ErrorBody{Error: "PayloadTooLarge", Message: msg}
	case http.StatusTooManyRequests:
		return middleware.ErrorBody{Error: "RateLimited", Message: msg}
	default:
		return middleware.ErrorBody{Error: http.StatusText(herr.Code), Message: msg}
	}
}

func send(c echo.Context, status int, body errorResponse) {
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}
