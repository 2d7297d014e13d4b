package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sudankdk/runbox/internal/languages"
	"github.com/sudankdk/runbox/internal/limiter"
	"github.com/sudankdk/runbox/internal/model"
)

type Executor interface {
	Execute(ctx context.Context, sub model.Submission) (model.Result, error)
}

type LanguageLister interface {
	List() []languages.Language
}

type Options struct {
	Executor  Executor
	Languages LanguageLister
	Limiter   *limiter.RateLimiter

	BodyLimit    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger *zap.Logger
}

type Server struct {
	app     *fiber.App
	exec    Executor
	langs   LanguageLister
	limiter *limiter.RateLimiter
	log     *zap.Logger
}

func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		exec:    opts.Executor,
		langs:   opts.Languages,
		limiter: opts.Limiter,
		log:     log.Named("api"),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "runbox",
		BodyLimit:             opts.BodyLimit,
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		ErrorHandler:          s.errorHandler,
		DisableStartupMessage: true,
	})
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(s.requestLogger())

	s.setupRoutes(s.app)
	return s
}

func (s *Server) StartServer(addr string) error {
	s.log.Info("http server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) setupRoutes(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("runbox running") })
	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/languages", s.languagesHandler)

	app.Post("/execute", s.limiter.Middleware(), s.executeHandler)
	app.All("/execute", methodNotAllowed)
}

// errorHandler renders every error as {"error": msg}. Anything that is not a
// *fiber.Error is reported as a bare 500.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code, msg = fe.Code, fe.Message
	} else {
		s.log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		s.log.Info("request",
			zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()))
		return err
	}
}
