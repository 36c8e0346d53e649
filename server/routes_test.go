package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnnbench/cnnbench/api"
	"github.com/cnnbench/cnnbench/convnet"
	"github.com/cnnbench/cnnbench/ml"
	"github.com/cnnbench/cnnbench/ml/nn"
	"github.com/cnnbench/cnnbench/model"
	"github.com/cnnbench/cnnbench/store"
	"github.com/cnnbench/cnnbench/version"
)

type tinyModel struct {
	model.Base
}

func (m *tinyModel) AddInference(cnn *convnet.Builder) {
	cnn.Conv(4, 3, 3)
	cnn.MPool(2, 2)
	cnn.Reshape([]int{-1, 4 * 4 * 4})
	cnn.Affine(16)
	cnn.Dropout()
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	model.Register("tiny", func() model.Model {
		return &tinyModel{Base: model.NewBase("tiny", 8, 2, 0.1)}
	})
	os.Exit(m.Run())
}

func newTestServer(t *testing.T, withStore bool) (*api.Client, string) {
	t.Helper()
	t.Setenv("CNNBENCH_NUM_CLASSES", "")
	t.Setenv("CNNBENCH_DATA_FORMAT", "")
	t.Setenv("CNNBENCH_DTYPE", "")
	t.Setenv("CNNBENCH_NUM_THREADS", "2")

	s := &Server{}
	if withStore {
		st, err := store.Open(filepath.Join(t.TempDir(), "results.db"))
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		s.store = st
	}

	h, err := s.GenerateRoutes()
	require.NoError(t, err)

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	base, err := url.Parse(ts.URL)
	require.NoError(t, err)
	return api.NewClient(base, ts.Client()), ts.URL
}

func statusCode(t *testing.T, err error) int {
	t.Helper()
	var serr api.StatusError
	require.True(t, errors.As(err, &serr), "expected StatusError, got %v", err)
	return serr.StatusCode
}

func TestHeartbeatAndVersion(t *testing.T) {
	client, _ := newTestServer(t, false)
	ctx := context.Background()

	require.NoError(t, client.Heartbeat(ctx))

	v, err := client.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.Version, v)
}

func TestListModels(t *testing.T) {
	client, _ := newTestServer(t, false)

	resp, err := client.List(context.Background())
	require.NoError(t, err)

	byName := make(map[string]api.ListModelResponse)
	for _, m := range resp.Models {
		byName[m.Name] = m
	}

	for _, name := range []string{"vgg11", "vgg16", "vgg19", "vgg19_200mp", "tiny"} {
		assert.Contains(t, byName, name)
	}

	vgg16 := byName["vgg16"]
	assert.Equal(t, 224, vgg16.ImageSize)
	assert.Equal(t, 64, vgg16.BatchSize)
	assert.InDelta(t, 0.005, vgg16.LearningRate, 1e-12)
	assert.Equal(t, 24, vgg16.Layers)
	assert.Equal(t, int64(138_361_641), vgg16.Params)
}

func TestShowModel(t *testing.T) {
	client, _ := newTestServer(t, false)
	ctx := context.Background()

	resp, err := client.Show(ctx, &api.ShowRequest{Name: "vgg16", BatchSize: 2, DataFormat: "nhwc", Verbose: true})
	require.NoError(t, err)

	assert.Equal(t, "vgg16", resp.Name)
	assert.Equal(t, 2, resp.BatchSize)
	assert.Equal(t, ml.NHWC, resp.DataFormat)
	if diff := cmp.Diff(ml.Shape{2, 224, 224, 3}, resp.Input); diff != "" {
		t.Errorf("input mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ml.Shape{2, 1001}, resp.Output); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[string]int{"conv": 13, "mpool": 5, "reshape": 1, "affine": 3, "dropout": 2}, resp.Counts)
	require.Len(t, resp.Layers, 24)
	assert.Equal(t, "conv0", resp.Layers[0].Name)
	assert.Equal(t, int64(138_361_641), resp.Params)

	short, err := client.Show(ctx, &api.ShowRequest{Name: "vgg16"})
	require.NoError(t, err)
	assert.Empty(t, short.Layers)
	assert.Equal(t, 64, short.BatchSize)

	_, err = client.Show(ctx, &api.ShowRequest{Name: "vgg17"})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, statusCode(t, err))
	assert.Contains(t, err.Error(), "did you mean")

	_, err = client.Show(ctx, &api.ShowRequest{Name: "vgg16", DataFormat: "chw"})
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))
}

func TestShowInvalidBatchSize(t *testing.T) {
	_, base := newTestServer(t, false)

	resp, err := http.Get(base + "/api/models/vgg11?batch_size=zero")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDefinition(t *testing.T) {
	client, base := newTestServer(t, false)

	def, err := client.Definition(context.Background(), "vgg11")
	require.NoError(t, err)
	assert.Equal(t, "vgg11", def.Name)
	assert.Len(t, def.Layers, 19)

	net, err := def.Build()
	require.NoError(t, err)
	assert.Equal(t, int64(132_867_433), net.Params())

	resp, err := http.Get(base + "/api/models/vgg11/definition?format=yaml")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/yaml"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	parsed, err := convnet.ParseDefinition(body)
	require.NoError(t, err)
	if diff := cmp.Diff(def, parsed); diff != "" {
		t.Errorf("yaml definition mismatch (-json +yaml):\n%s", diff)
	}

	resp, err = http.Get(base + "/api/models/vgg11/definition?format=toml")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBenchAndRuns(t *testing.T) {
	client, base := newTestServer(t, true)
	ctx := context.Background()

	report, err := client.Bench(ctx, &api.BenchRequest{
		Models:     []string{"vgg11", "vgg19"},
		BatchSizes: []int{1, 4},
		DryRun:     true,
		Record:     true,
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 4)
	for _, r := range report.Results {
		assert.True(t, r.DryRun)
		assert.Positive(t, r.FLOPs)
	}

	runs, err := client.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, report.ID, runs.Runs[0].ID)
	assert.Equal(t, 4, runs.Runs[0].Results)

	run, err := client.Run(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, run.ID)
	assert.Len(t, run.Details, 4)

	req, err := http.NewRequest(http.MethodDelete, base+"/api/runs/"+report.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = client.Run(ctx, report.ID)
	assert.Equal(t, http.StatusNotFound, statusCode(t, err))

	runs, err = client.Runs(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, runs.Runs)
}

func TestBenchMeasured(t *testing.T) {
	client, _ := newTestServer(t, false)

	warmup := 0
	report, err := client.Bench(context.Background(), &api.BenchRequest{
		Models:     []string{"tiny"},
		Iterations: 2,
		WarmupRuns: &warmup,
		Record:     true,
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	r := report.Results[0]
	assert.Equal(t, "tiny", r.Model)
	assert.Equal(t, 2, r.Iterations)
	assert.Positive(t, r.Throughput)
	assert.Equal(t, "tiny", report.Summary.Fastest)
}

// tinyDefinition is an NHWC network whose identity reshape feeds a conv.
func tinyDefinition() *convnet.Definition {
	return &convnet.Definition{
		Name:       "tiny-nhwc",
		Input:      []int{1, 8, 8, 3},
		DataFormat: ml.NHWC,
		Layers: []convnet.LayerSpec{
			{Kind: convnet.KindReshape, Shape: []int{-1, 8, 8, 3}},
			{Kind: convnet.KindConv, Units: 4, Kernel: []int{3, 3}},
			{Kind: convnet.KindMPool, Kernel: []int{2, 2}},
			{Kind: convnet.KindReshape, Shape: []int{-1, 64}},
			{Kind: convnet.KindAffine, Units: 5, Activation: nn.ActivationLinear},
		},
	}
}

func TestBenchDefinition(t *testing.T) {
	client, _ := newTestServer(t, false)

	warmup, seed := 0, uint64(9)
	report, err := client.Bench(context.Background(), &api.BenchRequest{
		Definition:  tinyDefinition(),
		BatchSizes:  []int{1, 3},
		Iterations:  2,
		WarmupRuns:  &warmup,
		Threads:     1,
		Seed:        &seed,
		LayerTiming: true,
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, uint64(9), report.Config.Seed)
	assert.Equal(t, 1, report.Config.Threads)

	for i, r := range report.Results {
		assert.Equal(t, "tiny-nhwc", r.Model)
		assert.Equal(t, []int{1, 3}[i], r.BatchSize)
		assert.Equal(t, ml.NHWC, r.DataFormat)
		assert.Equal(t, 1, r.Threads)
		assert.Positive(t, r.Throughput)
		assert.Len(t, r.Layers, 5)
	}
}

func TestBenchNumClasses(t *testing.T) {
	client, _ := newTestServer(t, false)
	ctx := context.Background()

	small, err := client.Bench(ctx, &api.BenchRequest{Models: []string{"tiny"}, NumClasses: 7, DryRun: true})
	require.NoError(t, err)
	large, err := client.Bench(ctx, &api.BenchRequest{Models: []string{"tiny"}, NumClasses: 9, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 7, small.Config.NumClasses)
	// two more classes on a 16 wide affine input
	assert.Equal(t, int64(2*(16+1)), large.Results[0].Params-small.Results[0].Params)

	// dry runs are analytic and skip the batch limit
	_, err = client.Bench(ctx, &api.BenchRequest{Models: []string{"vgg19"}, BatchSizes: []int{4096}, DryRun: true})
	assert.NoError(t, err)
}

func TestBenchErrors(t *testing.T) {
	client, base := newTestServer(t, false)
	ctx := context.Background()

	cases := map[string]struct {
		req  api.BenchRequest
		want int
	}{
		"no models":      {api.BenchRequest{}, http.StatusBadRequest},
		"unknown model":  {api.BenchRequest{Models: []string{"vgg12"}}, http.StatusNotFound},
		"too many iters": {api.BenchRequest{Models: []string{"tiny"}, Iterations: 1000}, http.StatusBadRequest},
		"bad batch":      {api.BenchRequest{Models: []string{"tiny"}, BatchSizes: []int{0}}, http.StatusBadRequest},
		"bad format":     {api.BenchRequest{Models: []string{"tiny"}, DataFormat: "CHW"}, http.StatusBadRequest},
		"bad dtype":      {api.BenchRequest{Models: []string{"tiny"}, DType: "int8"}, http.StatusBadRequest},
		"huge batch":     {api.BenchRequest{Models: []string{"vgg19"}, BatchSizes: []int{4096}}, http.StatusBadRequest},
		"threads":        {api.BenchRequest{Models: []string{"tiny"}, Threads: 1 << 20}, http.StatusBadRequest},
		"both":           {api.BenchRequest{Models: []string{"tiny"}, Definition: tinyDefinition()}, http.StatusBadRequest},
		"bad definition": {api.BenchRequest{Definition: &convnet.Definition{Input: []int{1, 3, 8}}}, http.StatusBadRequest},
		"huge image":     {api.BenchRequest{Definition: &convnet.Definition{Input: []int{1, 3, 4096, 4096}, DataFormat: ml.NCHW}}, http.StatusBadRequest},
	}
	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := client.Bench(ctx, &tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.want, statusCode(t, err))
		})
	}

	resp, err := http.Post(base+"/api/bench", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "missing request body")
}

func TestRunsWithoutStore(t *testing.T) {
	client, _ := newTestServer(t, false)

	_, err := client.Runs(context.Background(), 0)
	assert.Equal(t, http.StatusNotFound, statusCode(t, err))
}

func TestAllowedHosts(t *testing.T) {
	t.Setenv("CNNBENCH_ORIGINS", "https://bench.example.org,http://*.lab.test:*")

	s := &Server{addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 11535}}
	h, err := s.GenerateRoutes()
	require.NoError(t, err)

	cases := []struct {
		method, path, host string
		want               int
	}{
		{http.MethodGet, "/api/version", "localhost:11535", http.StatusOK},
		{http.MethodGet, "/api/version", "127.0.0.1:11535", http.StatusOK},
		{http.MethodGet, "/api/version", "[::1]:11535", http.StatusOK},
		{http.MethodGet, "/api/version", "bench.local", http.StatusOK},
		{http.MethodGet, "/api/version", "bench.example.org", http.StatusOK},
		{http.MethodGet, "/api/version", "gpu1.lab.test:8080", http.StatusOK},
		{http.MethodGet, "/api/version", "example.com", http.StatusForbidden},
		{http.MethodGet, "/api/version", "evil.example.com:8080", http.StatusForbidden},
		{http.MethodGet, "/api/runs", "lab.test.evil.com", http.StatusForbidden},
		{http.MethodGet, "/api/models", "example.com", http.StatusOK},
		{http.MethodGet, "/api/models/tiny", "example.com", http.StatusOK},
		{http.MethodPost, "/api/bench", "example.com", http.StatusForbidden},
	}
	for _, tt := range cases {
		t.Run(tt.method+" "+tt.path+" "+tt.host, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Host = tt.host
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	// servers bound to a public interface answer any host
	public := &Server{addr: &net.TCPAddr{IP: net.IPv4(0, 0, 0, 0), Port: 11535}}
	h, err = public.GenerateRoutes()
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	req.Host = "example.com"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOriginHost(t *testing.T) {
	cases := map[string]string{
		"http://localhost:*":      "localhost",
		"https://Bench.Example":   "bench.example",
		"http://[::1]:8080":       "::1",
		"https://*.lab.test/path": "*.lab.test",
		"bench.example:9000":      "bench.example",
		"*":                       "*",
	}
	for origin, want := range cases {
		assert.Equal(t, want, originHost(origin), origin)
	}
}
