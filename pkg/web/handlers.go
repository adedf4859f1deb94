package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/frothvision/frothwatch/pkg/features"
	"github.com/frothvision/frothwatch/pkg/hub"
)

// handleCameras returns per-camera pipeline stats.
func (s *Server) handleCameras(c *fiber.Ctx) error {
	return c.JSON(s.manager.Stats())
}

// handleRestartCamera tears down and restarts one camera's reader.
func (s *Server) handleRestartCamera(c *fiber.Ctx) error {
	index, err := c.ParamsInt("index")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "camera index must be an integer",
		})
	}

	if !s.manager.RestartCamera(index) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "camera not found or failed to restart",
		})
	}
	return c.JSON(fiber.Map{"camera_index": index, "restarted": true})
}

// handleLatestFeatures returns the newest record for every camera.
func (s *Server) handleLatestFeatures(c *fiber.Ctx) error {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()

	out := make([]features.Record, 0, len(s.latest))
	for _, rec := range s.latest {
		out = append(out, rec)
	}
	return c.JSON(out)
}

// handleLatestFeaturesFor returns the newest record for one camera.
func (s *Server) handleLatestFeaturesFor(c *fiber.Ctx) error {
	index, err := c.ParamsInt("index")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "camera index must be an integer",
		})
	}

	s.latestMu.RLock()
	rec, ok := s.latest[index]
	s.latestMu.RUnlock()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no features for camera",
		})
	}
	return c.JSON(rec)
}

// handleStats returns worker counters plus camera stats.
func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"processed": s.worker.Processed(),
		"dropped":   s.worker.Dropped(),
		"cameras":   s.manager.Stats(),
	})
}

// handleFeaturesWS streams feature records as they complete.
func (s *Server) handleFeaturesWS(c *websocket.Conn) {
	hub.NewClient(s.featureHub, c).Run()
}

// handleStatusWS streams camera state transitions, seeding each new
// subscriber with the current state of every camera.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	s.statusMu.RLock()
	for _, p := range s.statuses {
		c.WriteJSON(p)
	}
	s.statusMu.RUnlock()

	hub.NewClient(s.statusHub, c).Run()
}

// handlePreviewWS streams throttled JPEG previews.
func (s *Server) handlePreviewWS(c *websocket.Conn) {
	hub.NewClient(s.previewHub, c).Run()
}
