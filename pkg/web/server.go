// Package web serves the frothwatch dashboard: REST endpoints for
// camera and feature state plus websocket feeds for live records,
// connection status and JPEG previews.
package web

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"gocv.io/x/gocv"

	"github.com/frothvision/frothwatch/internal/log"
	"github.com/frothvision/frothwatch/pkg/analysis"
	"github.com/frothvision/frothwatch/pkg/features"
	"github.com/frothvision/frothwatch/pkg/hub"
	"github.com/frothvision/frothwatch/pkg/stream"
)

// previewInterval throttles JPEG preview broadcasts per camera.
const previewInterval = time.Second

// statusPayload is the wire form of a camera status update.
type statusPayload struct {
	CameraIndex int    `json:"camera_index"`
	State       string `json:"state"`
	RetryCount  int    `json:"retry_count"`
	Error       string `json:"error,omitempty"`
}

// Server is the frothwatch dashboard server.
type Server struct {
	app  *fiber.App
	addr string

	manager *stream.Manager
	worker  *analysis.Worker

	// Latest feature record per camera
	latestMu sync.RWMutex
	latest   map[int]features.Record

	// Last known connection status per camera
	statusMu sync.RWMutex
	statuses map[int]statusPayload

	// Hubs for websocket broadcast
	featureHub *hub.Hub
	statusHub  *hub.Hub
	previewHub *hub.Hub

	// Per-camera preview throttle
	previewMu   sync.Mutex
	previewLast map[int]time.Time
}

// NewServer wires the dashboard against a stream manager and an
// analysis worker.
func NewServer(addr string, manager *stream.Manager, worker *analysis.Worker) *Server {
	s := &Server{
		addr:        addr,
		manager:     manager,
		worker:      worker,
		latest:      make(map[int]features.Record),
		statuses:    make(map[int]statusPayload),
		featureHub:  hub.New("features"),
		statusHub:   hub.New("status"),
		previewHub:  hub.New("preview"),
		previewLast: make(map[int]time.Time),
	}

	app := fiber.New(fiber.Config{
		AppName:               "frothwatch",
		DisableStartupMessage: true,
	})

	// CORS for dashboards served from another origin
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/cameras", s.handleCameras)
	api.Post("/cameras/:index/restart", s.handleRestartCamera)
	api.Get("/features/latest", s.handleLatestFeatures)
	api.Get("/features/latest/:index", s.handleLatestFeaturesFor)
	api.Get("/stats", s.handleStats)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/features", websocket.New(s.handleFeaturesWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/preview", websocket.New(s.handlePreviewWS))

	s.app = app
	return s
}

// Start runs the hubs and blocks serving HTTP.
func (s *Server) Start() error {
	log.Info("dashboard listening", "addr", s.addr)

	go s.featureHub.Run()
	go s.statusHub.Run()
	go s.previewHub.Run()

	return s.app.Listen(s.addr)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("dashboard server error", "error", err)
		}
	}()
}

// Shutdown stops the hubs and the HTTP listener.
func (s *Server) Shutdown() error {
	s.featureHub.Stop()
	s.statusHub.Stop()
	s.previewHub.Stop()
	return s.app.Shutdown()
}

// HandleRecord stores and broadcasts a completed feature record. It
// satisfies analysis.RecordFunc.
func (s *Server) HandleRecord(rec features.Record) {
	s.latestMu.Lock()
	s.latest[rec.CameraIndex] = rec
	s.latestMu.Unlock()

	s.featureHub.BroadcastJSON(rec)
}

// HandleStatus stores and broadcasts a camera state transition. It
// satisfies stream.StatusConsumer.
func (s *Server) HandleStatus(cameraIndex int, st stream.Status) {
	p := statusPayload{
		CameraIndex: cameraIndex,
		State:       st.State.String(),
		RetryCount:  st.RetryCount,
	}
	if st.LastError != nil {
		p.Error = st.LastError.Error()
	}

	s.statusMu.Lock()
	s.statuses[cameraIndex] = p
	s.statusMu.Unlock()

	s.statusHub.BroadcastJSON(p)
}

// HandleFrame broadcasts a throttled JPEG preview of the frame. It
// satisfies stream.FrameConsumer; the frame is encoded before the
// callback returns, nothing is retained.
func (s *Server) HandleFrame(cameraIndex int, f stream.Frame) {
	if s.previewHub.ClientCount() == 0 {
		return
	}

	s.previewMu.Lock()
	last := s.previewLast[cameraIndex]
	now := time.Now()
	if now.Sub(last) < previewInterval {
		s.previewMu.Unlock()
		return
	}
	s.previewLast[cameraIndex] = now
	s.previewMu.Unlock()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, f.Image)
	if err != nil {
		log.Warn("preview encode failed", "camera", cameraIndex, "error", err)
		return
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	s.previewHub.BroadcastBinary(data)
}
