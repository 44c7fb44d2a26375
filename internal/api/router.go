package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facecheck/internal/api/handlers"
	"github.com/your-org/facecheck/internal/api/ws"
	"github.com/your-org/facecheck/internal/auth"
	"github.com/your-org/facecheck/internal/enroll"
)

// Store is everything the API reads from and writes to Postgres.
type Store interface {
	handlers.EmployeeStore
	handlers.AttendanceStore
}

type RouterConfig struct {
	APIKey     string
	DB         Store
	References handlers.ReferenceStore
	// Snapshots may be nil when object storage is not configured.
	Snapshots handlers.SnapshotStore
	Sessions  *enroll.Sessions
	Extractor handlers.Extractor
	Threshold float64
	Hub       *ws.Hub
	Notify    handlers.ReferenceNotifier
	Checks    map[string]handlers.Check
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	// Enrollment sessions
	if cfg.Sessions != nil {
		enrollH := handlers.NewEnrollmentHandler(cfg.Sessions, cfg.Notify)
		v1.POST("/enrollments", enrollH.Create)
		v1.POST("/enrollments/:id/preview", enrollH.Preview)
		v1.POST("/enrollments/:id/captures", enrollH.Capture)
		v1.DELETE("/enrollments/:id/captures", enrollH.Reset)
		v1.POST("/enrollments/:id/submit", enrollH.Submit)
		v1.DELETE("/enrollments/:id", enrollH.Delete)
	}

	// Employees
	empH := handlers.NewEmployeeHandler(cfg.DB, cfg.References, cfg.Snapshots, cfg.Notify)
	v1.GET("/employees", empH.List)
	v1.GET("/employees/:key", empH.Get)
	v1.DELETE("/employees/:key", empH.Delete)

	// Attendance
	attH := handlers.NewAttendanceHandler(cfg.DB, cfg.DB)
	v1.GET("/attendance", attH.List)

	// Reference store
	refH := handlers.NewReferenceHandler(cfg.References, cfg.Notify)
	v1.GET("/references/:key", refH.Get)
	v1.DELETE("/references", refH.Clear)

	// One-shot recognition
	if cfg.Extractor != nil {
		recH := handlers.NewRecognizeHandler(cfg.Extractor, cfg.References, cfg.DB, cfg.Threshold)
		v1.POST("/recognize", recH.Recognize)
	}

	return r
}
