package devserver

import (
	"context"

	"aicca-realtime/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// MaxUploadSize bounds files accepted by POST /api/upload.
const MaxUploadSize = 100 * 1024 * 1024

var apiInfo = fiber.Map{
	"service": "AICCA - AI Content Credibility Agent (dev)",
	"version": "1.0.0",
	"capabilities": []string{
		"ai_content_detection",
		"deepfake_detection",
		"c2pa_credential_management",
		"image_verification",
		"compliance_reporting",
	},
	"supported_formats": []string{
		"text", "image/jpeg", "image/png",
		"image/webp", "audio/mp3", "audio/wav",
		"video/mp4", "application/pdf",
	},
	"api_endpoints": fiber.Map{
		"analyze":   "/api/analyze",
		"upload":    "/api/upload",
		"batch":     "/api/batch/analyze",
		"tools":     "/api/tools/execute",
		"websocket": "/ws/enhanced/{client_id}",
	},
}

type Handler struct {
	ctx     context.Context
	hub     *Hub
	agent   *Agent
	storage *FileStorage
	logger  logger.ILogger
}

// NewHandler serves sessions until ctx is cancelled.
func NewHandler(ctx context.Context, hub *Hub, agent *Agent, storage *FileStorage, log logger.ILogger) *Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Handler{ctx: ctx, hub: hub, agent: agent, storage: storage, logger: log}
}

// ServeWs upgrades /ws/enhanced/:client_id and runs the session until the peer leaves.
func (h *Handler) ServeWs(c *fiber.Ctx) error {
	clientID := c.Params("client_id")
	if clientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing client id"})
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("Handler", "Starting WebSocket session", map[string]interface{}{"client_id": clientID})
			h.serveClient(conn, clientID)
			h.logger.Info("Handler", "WebSocket session ended", map[string]interface{}{"client_id": clientID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

func (h *Handler) serveClient(conn *websocket.Conn, clientID string) {
	client := newClient(h.hub, conn, clientID)
	if !h.hub.add(client) {
		return
	}
	h.agent.Greet(client)

	written := make(chan struct{})
	go func() {
		defer close(written)
		client.writePump()
	}()
	client.readPump(h.ctx, h.agent)
	<-written
}

func (h *Handler) Info(c *fiber.Ctx) error {
	return c.JSON(apiInfo)
}

// Tools lists the tools this server can execute. The dev agent has none.
func (h *Handler) Tools(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"total": 0, "tools": []fiber.Map{}})
}

func (h *Handler) Upload(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing file: " + err.Error()})
	}
	if header.Size > MaxUploadSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "File too large. Max size: 104857600 bytes"})
	}

	purpose := c.FormValue("purpose", "analysis")

	file, err := header.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Upload failed: " + err.Error()})
	}
	defer file.Close()

	fileID, size, err := h.storage.Save(file)
	if err != nil {
		h.logger.Error("Handler", "Failed to store upload", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Upload failed: " + err.Error()})
	}

	return c.JSON(fiber.Map{
		"file_id":      fileID,
		"filename":     header.Filename,
		"content_type": header.Header.Get("Content-Type"),
		"size":         size,
		"purpose":      purpose,
		"status":       "uploaded",
	})
}

func (h *Handler) Connections(c *fiber.Ctx) error {
	conns := h.hub.Connections()
	return c.JSON(fiber.Map{
		"total_connections": len(conns),
		"connections":       conns,
	})
}

func (h *Handler) RegisterRoutes(router fiber.Router) {
	api := router.Group("/api")
	api.Get("/info", h.Info)
	api.Get("/tools", h.Tools)
	api.Post("/upload", h.Upload)

	ws := router.Group("/ws")
	ws.Get("/connections", h.Connections)
	ws.Get("/enhanced/:client_id", h.ServeWs)
}
