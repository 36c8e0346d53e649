// Package server exposes the model registry, the benchmark and the results
// store over HTTP.
package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cnnbench/cnnbench/api"
	"github.com/cnnbench/cnnbench/benchmark"
	"github.com/cnnbench/cnnbench/convnet"
	"github.com/cnnbench/cnnbench/envconfig"
	"github.com/cnnbench/cnnbench/ml"
	"github.com/cnnbench/cnnbench/model"
	_ "github.com/cnnbench/cnnbench/model/models"
	"github.com/cnnbench/cnnbench/store"
	"github.com/cnnbench/cnnbench/version"
)

// Limits on measured benchmark requests; larger runs belong on the
// command line.
const (
	maxIterations = 100
	maxBatchSize  = 64
	maxImageSize  = 512
)

// mode is set at build time with -ldflags "-X".
var mode string = gin.DebugMode

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

var errNoStore = errors.New("results are not being recorded on this server")

type Server struct {
	addr net.Addr

	// store is nil when recording is disabled.
	store *store.Store

	// benchMu keeps concurrent benchmark requests from competing for cores.
	benchMu sync.Mutex
}

func (s *Server) GenerateRoutes() (http.Handler, error) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		newHostGuard().middleware(s.addr),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "cnnbench is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "cnnbench is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, api.VersionResponse{Version: version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, api.VersionResponse{Version: version.Version}) })

	// Models
	r.GET("/api/models", s.ListHandler)
	r.GET("/api/models/:name", s.ShowHandler)
	r.GET("/api/models/:name/definition", s.DefinitionHandler)

	// Benchmarks
	r.POST("/api/bench", s.BenchHandler)
	r.GET("/api/runs", s.RunsHandler)
	r.GET("/api/runs/:id", s.RunHandler)
	r.DELETE("/api/runs/:id", s.DeleteRunHandler)

	return r, nil
}

// ============================================================================
// Modelle
// ============================================================================

func (s *Server) ListHandler(c *gin.Context) {
	names := model.List()
	models := make([]api.ListModelResponse, 0, len(names))
	for _, name := range names {
		m, err := model.New(name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		net, err := model.BuildNetwork(m)
		if err != nil {
			slog.Warn("skipping model", "model", name, "error", err)
			continue
		}

		models = append(models, api.ListModelResponse{
			Name:         name,
			ImageSize:    m.ImageSize(),
			BatchSize:    m.BatchSize(),
			LearningRate: m.LearningRate(0, m.BatchSize()),
			Layers:       len(net.Layers),
			Params:       net.Params(),
		})
	}

	c.JSON(http.StatusOK, api.ListResponse{Models: models})
}

func (s *Server) ShowHandler(c *gin.Context) {
	opts, err := buildOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := model.New(c.Param("name"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	net, err := model.BuildNetwork(m, opts...)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dtype, err := ml.ParseDType(envconfig.DType())
	if err != nil {
		dtype = ml.DTypeF32
	}

	verbose, _ := strconv.ParseBool(c.Query("verbose"))
	c.JSON(http.StatusOK, model.Summarize(m, net, dtype, verbose))
}

func (s *Server) DefinitionHandler(c *gin.Context) {
	opts, err := buildOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := model.New(c.Param("name"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	net, err := model.BuildNetwork(m, opts...)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch f := c.DefaultQuery("format", "json"); f {
	case "json":
		c.JSON(http.StatusOK, net.Definition())
	case "yaml", "yml":
		var b bytes.Buffer
		if err := net.Definition().Encode(&b, f); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/yaml; charset=utf-8", b.Bytes())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown format %q", f)})
	}
}

// ============================================================================
// Benchmarks
// ============================================================================

func (s *Server) BenchHandler(c *gin.Context) {
	var req api.BenchRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch {
	case len(req.Models) == 0 && req.Definition == nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": "models or a definition are required"})
		return
	case len(req.Models) > 0 && req.Definition != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": "models and a definition are mutually exclusive"})
		return
	}

	cfg, err := benchConfig(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Definition != nil {
		if err := checkDefinition(req.Definition); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	for _, name := range req.Models {
		if _, err := model.New(name); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
	}

	input := benchmark.SyntheticInput{Seed: cfg.Seed}
	s.benchMu.Lock()
	var report *benchmark.Report
	if req.Definition != nil {
		report, err = benchmark.RunDefinitionReport(c.Request.Context(), req.Definition, cfg, input)
	} else {
		report, err = benchmark.RunReport(c.Request.Context(), req.Models, cfg, input)
	}
	s.benchMu.Unlock()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if req.Record {
		if s.store == nil {
			slog.Warn("not recording benchmark run", "id", report.ID, "error", errNoStore)
		} else if err := s.store.SaveReport(c.Request.Context(), report); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, report)
}

// ============================================================================
// Gespeicherte Laeufe
// ============================================================================

func (s *Server) RunsHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": errNoStore.Error()})
		return
	}

	limit := 0
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid limit %q", q)})
			return
		}
		limit = n
	}

	runs, err := s.store.Runs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}

	c.JSON(http.StatusOK, api.RunsResponse{Runs: runs})
}

func (s *Server) RunHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": errNoStore.Error()})
		return
	}

	run, err := s.store.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	results, err := s.store.Results(c.Request.Context(), run.ID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.RunResponse{Run: *run, Details: results})
}

func (s *Server) DeleteRunHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": errNoStore.Error()})
		return
	}

	if err := s.store.DeleteRun(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// ============================================================================
// Hilfsfunktionen
// ============================================================================

// buildOptions reads batch_size and data_format from the query string.
func buildOptions(c *gin.Context) ([]model.Option, error) {
	var opts []model.Option
	if q := c.Query("batch_size"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid batch_size %q", q)
		}
		opts = append(opts, model.WithBatchSize(n))
	}
	if q := c.Query("data_format"); q != "" {
		f, err := ml.ParseDataFormat(q)
		if err != nil {
			return nil, err
		}
		opts = append(opts, model.WithDataFormat(f))
	}
	return opts, nil
}

func benchConfig(req api.BenchRequest) (benchmark.Config, error) {
	cfg := benchmark.DefaultConfig()
	cfg.DryRun = req.DryRun
	cfg.LayerTiming = req.LayerTiming
	if len(req.BatchSizes) > 0 {
		cfg.BatchSizes = req.BatchSizes
	}
	if req.Iterations > 0 {
		cfg.Iterations = req.Iterations
	}
	if req.WarmupRuns != nil {
		cfg.WarmupRuns = *req.WarmupRuns
	}
	if req.Threads > runtime.NumCPU() {
		return cfg, fmt.Errorf("benchmark: %d threads exceed the %d available cores", req.Threads, runtime.NumCPU())
	} else if req.Threads > 0 {
		cfg.Threads = req.Threads
	}
	if req.DType != "" {
		cfg.DType = req.DType
	}
	if req.DataFormat != "" {
		f, err := ml.ParseDataFormat(req.DataFormat)
		if err != nil {
			return cfg, err
		}
		cfg.DataFormat = f
	}
	if req.NumClasses > 0 {
		cfg.NumClasses = req.NumClasses
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}

	// dry runs allocate nothing
	if !cfg.DryRun {
		if cfg.Iterations > maxIterations {
			return cfg, fmt.Errorf("%w: %d exceeds the limit of %d", benchmark.ErrInvalidIterations, cfg.Iterations, maxIterations)
		}
		for _, n := range cfg.BatchSizes {
			if n > maxBatchSize {
				return cfg, fmt.Errorf("%w: %d exceeds the limit of %d", benchmark.ErrInvalidBatchSize, n, maxBatchSize)
			}
		}
	}
	return cfg, cfg.Validate()
}

// checkDefinition rejects definitions that do not build or whose input
// images exceed maxImageSize.
func checkDefinition(d *convnet.Definition) error {
	net, err := d.Build()
	if err != nil {
		return err
	}
	if _, _, h, w := net.Format.Dims(net.Input); h > maxImageSize || w > maxImageSize {
		return fmt.Errorf("definition input %v exceeds %dx%d", net.Input, maxImageSize, maxImageSize)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrModelNotRegistered), errors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
