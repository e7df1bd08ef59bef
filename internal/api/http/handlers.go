package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"

	"github.com/ferrous-os/ferrous/internal/events"
	"github.com/ferrous-os/ferrous/internal/infrastructure/logging"
	"github.com/ferrous-os/ferrous/internal/infrastructure/monitoring"
	"github.com/ferrous-os/ferrous/internal/kernel"
	"github.com/ferrous-os/ferrous/internal/shared/id"
)

// Handlers serves the monitor API: read-only introspection of kernel
// state plus the audit event journal. It never mutates capability or
// IPC state on behalf of a client; the one write it offers is a sweep
// of already-revoked table entries.
type Handlers struct {
	kernel  *kernel.Kernel
	journal *events.Journal
	metrics *monitoring.Metrics
	log     *logging.Logger
	started time.Time
}

// NewHandlers creates the monitor API handlers.
func NewHandlers(k *kernel.Kernel, journal *events.Journal, metrics *monitoring.Metrics, log *logging.Logger) *Handlers {
	return &Handlers{
		kernel:  k,
		journal: journal,
		metrics: metrics,
		log:     log,
		started: time.Now(),
	}
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Seconds(),
	})
}

// Stats returns a point-in-time summary of kernel state.
func (h *Handlers) Stats(c *gin.Context) {
	resp := gin.H{
		"success": true,
		"stats":   h.kernel.Stats(),
	}
	if h.metrics != nil {
		snap := h.metrics.GetSnapshot()
		resp["syscalls"] = gin.H{
			"total":    snap.TotalSyscalls,
			"denied":   snap.TotalDenied,
			"sent":     snap.TotalSent,
			"received": snap.TotalReceived,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Processes lists registered processes.
func (h *Handlers) Processes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"processes": h.kernel.ListProcesses(),
	})
}

// ProcessCapabilities lists the capability space of one process.
func (h *Handlers) ProcessCapabilities(c *gin.Context) {
	pid, err := strconv.ParseUint(c.Param("pid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid pid",
		})
		return
	}

	caps, err := h.kernel.ListCapabilities(id.ProcessID(pid))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"pid":          pid,
		"capabilities": caps,
	})
}

// Endpoints lists registered endpoints.
func (h *Handlers) Endpoints(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"endpoints": h.kernel.ListEndpoints(),
	})
}

// EventsTail returns the most recent audit events, oldest first.
// Query parameter n bounds the count (default 100).
func (h *Handlers) EventsTail(c *gin.Context) {
	n := 100
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "invalid n",
			})
			return
		}
		n = parsed
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"events":  h.journal.Tail(n),
	})
}

// EventsExport streams the full retained journal as gzipped JSON.
func (h *Handlers) EventsExport(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Header("Content-Encoding", "gzip")
	c.Header("Content-Disposition", `attachment; filename="events.json.gz"`)

	zw := gzip.NewWriter(c.Writer)
	defer zw.Close()

	if err := writeJSON(zw, h.journal.Tail(0)); err != nil {
		h.log.Warn("event export aborted: " + err.Error())
	}
}

// Sweep reclaims revoked capability table entries.
func (h *Handlers) Sweep(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"reclaimed": h.kernel.SweepCapabilities(),
	})
}

func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
