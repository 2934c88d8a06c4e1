// routes_optimize.go - Handler fuer Optimierung und Telemetrie
// Enthaelt: OptimizeHandler, ListRunsHandler, RunHandler, DeleteRunHandler, statusFor

package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/speedster/speedster/api"
	"github.com/speedster/speedster/backend"
	"github.com/speedster/speedster/convert"
	"github.com/speedster/speedster/data"
	"github.com/speedster/speedster/fetch"
	"github.com/speedster/speedster/metric"
	"github.com/speedster/speedster/model"
	"github.com/speedster/speedster/speedster"
	"github.com/speedster/speedster/store"
)

var errNoStore = errors.New("telemetry database is disabled")

// validationErrors sind Fehler, die auf eine fehlerhafte Anfrage zurueckgehen.
var validationErrors = []error{
	fetch.ErrNotFound,
	fetch.ErrUnknownFormat,
	data.ErrInvalidFormat,
	metric.ErrUnknown,
	backend.ErrUnknownCompiler,
	backend.ErrUnknownCompressor,
	backend.ErrInvalidOptimizationTime,
	speedster.ErrInvalidConfig,
	model.ErrInvalidDynamicInfo,
	model.ErrInvalidNetwork,
	convert.ErrUnsupportedFramework,
}

// statusFor bildet einen Fehler auf einen HTTP-Status ab.
func statusFor(err error) int {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	if errors.Is(err, store.ErrRunNotFound) || errors.Is(err, errNoStore) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

// OptimizeHandler fuehrt einen Optimierungs-Lauf synchron aus
func (s *Server) OptimizeHandler(c *gin.Context) {
	var req api.OptimizeRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Model == "" || req.Data == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "model and data are required"})
		return
	}

	m, err := fetch.Model(req.Model)
	if err != nil {
		abort(c, err)
		return
	}
	d, err := fetch.Data(req.Data)
	if err != nil {
		abort(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		abort(c, err)
		return
	}
	defer s.sem.Release(1)

	sp := s.speedster()
	if err := sp.Execute(ctx, m, d, req.Options()...); err != nil {
		abort(c, err)
		return
	}

	resp := api.OptimizeResponse{
		RunID:      sp.RunID(),
		Summary:    sp.Summary(),
		Candidates: sp.Candidates(),
	}
	if l := sp.OptimalModel(); l != nil && req.Output != "" {
		if err := l.Save(req.Output); err != nil {
			abort(c, fmt.Errorf("save optimized model: %w", err))
			return
		}
		resp.Output = req.Output
	}

	c.JSON(http.StatusOK, resp)
}

// ListRunsHandler listet gespeicherte Laeufe (?limit=N)
func (s *Server) ListRunsHandler(c *gin.Context) {
	if s.store == nil {
		abort(c, errNoStore)
		return
	}

	limit := 0
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid limit %q", q)})
			return
		}
		limit = n
	}

	runs, err := s.store.Runs(c.Request.Context(), limit)
	if err != nil {
		abort(c, err)
		return
	}
	if runs == nil {
		runs = []store.Summary{}
	}

	c.JSON(http.StatusOK, api.ListRunsResponse{Runs: runs})
}

// RunHandler gibt einen Lauf mit allen Versuchen zurueck
func (s *Server) RunHandler(c *gin.Context) {
	if s.store == nil {
		abort(c, errNoStore)
		return
	}

	run, err := s.store.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// DeleteRunHandler loescht einen Lauf
func (s *Server) DeleteRunHandler(c *gin.Context) {
	if s.store == nil {
		abort(c, errNoStore)
		return
	}

	if err := s.store.DeleteRun(c.Request.Context(), c.Param("id")); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusOK)
}
