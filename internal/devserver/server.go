// Package devserver is a local backend that speaks the session protocol, for
// exercising the client without the real verification agent.
package devserver

import (
	"log"
	"net"

	"aicca-realtime/internal/config"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

type Server struct {
	app *fiber.App
	cfg config.DevServerConfig
}

func NewServer(cfg config.DevServerConfig, handler *Handler) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:             MaxUploadSize + 1024*1024,
		DisableStartupMessage: true,
	})

	// Credentials cannot be combined with a wildcard origin.
	origins := cfg.CorsAllowedOrigins
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowCredentials: origins != "" && origins != "*",
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowMethods:     "GET, POST, OPTIONS",
		ExposeHeaders:    "Content-Length, Content-Type",
	}))

	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware())

	handler.RegisterRoutes(app)

	return &Server{app: app, cfg: cfg}
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	log.Printf("✅ Dev server is running on http://localhost:%s", s.cfg.Port)
	return s.app.Listen(":" + s.cfg.Port)
}

// Serve accepts connections on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
