package envconfig

import (
	"log/slog"
	"path/filepath"
	"runtime"
	"testing"
)

func TestHost(t *testing.T) {
	cases := map[string]string{
		"":                      "127.0.0.1:11535",
		"0.0.0.0":               "0.0.0.0:11535",
		"0.0.0.0:8080":          "0.0.0.0:8080",
		"http://localhost:9000": "localhost:9000",
		"[::1]":                 "[::1]:11535",
		"127.0.0.1:99999":       "127.0.0.1:11535",
	}

	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("CNNBENCH_HOST", value)
			if got := Host(); got != expect {
				t.Errorf("Host() = %q, want %q", got, expect)
			}
		})
	}
}

func TestHome(t *testing.T) {
	t.Setenv("CNNBENCH_HOME", "/tmp/bench")
	if got := Home(); got != "/tmp/bench" {
		t.Errorf("Home() = %q", got)
	}

	t.Setenv("CNNBENCH_HOME", "")
	t.Setenv("HOME", "/home/user")
	if got := Home(); got != filepath.Join("/home/user", ".cnnbench") {
		t.Errorf("Home() = %q", got)
	}
}

func TestNumThreads(t *testing.T) {
	t.Setenv("CNNBENCH_NUM_THREADS", "")
	if got := NumThreads(); got != runtime.NumCPU() {
		t.Errorf("NumThreads() = %d, want %d", got, runtime.NumCPU())
	}

	t.Setenv("CNNBENCH_NUM_THREADS", "3")
	if got := NumThreads(); got != 3 {
		t.Errorf("NumThreads() = %d, want 3", got)
	}

	t.Setenv("CNNBENCH_NUM_THREADS", "lots")
	if got := NumThreads(); got != runtime.NumCPU() {
		t.Errorf("NumThreads() = %d, want %d", got, runtime.NumCPU())
	}
}

func TestDataFormatAndDType(t *testing.T) {
	cases := []struct {
		format, wantFormat string
		dtype, wantDType   string
	}{
		{"", "NCHW", "", "f32"},
		{"nhwc", "NHWC", "F16", "f16"},
		{"'NCHW'", "NCHW", "bf16", "bf16"},
		{"CHWN", "NCHW", "f64", "f32"},
	}

	for _, tt := range cases {
		t.Setenv("CNNBENCH_DATA_FORMAT", tt.format)
		t.Setenv("CNNBENCH_DTYPE", tt.dtype)
		if got := DataFormat(); got != tt.wantFormat {
			t.Errorf("DataFormat(%q) = %q, want %q", tt.format, got, tt.wantFormat)
		}
		if got := DType(); got != tt.wantDType {
			t.Errorf("DType(%q) = %q, want %q", tt.dtype, got, tt.wantDType)
		}
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"0":     slog.LevelInfo,
		"1":     slog.LevelDebug,
		"true":  slog.LevelDebug,
		"2":     slog.Level(-8),
	}

	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("CNNBENCH_DEBUG", value)
			if got := LogLevel(); got != expect {
				t.Errorf("LogLevel() = %v, want %v", got, expect)
			}
		})
	}
}

func TestUintAndBool(t *testing.T) {
	t.Setenv("CNNBENCH_NUM_CLASSES", "")
	if got := NumClasses(); got != 1001 {
		t.Errorf("NumClasses() = %d", got)
	}
	t.Setenv("CNNBENCH_NUM_CLASSES", "10")
	if got := NumClasses(); got != 10 {
		t.Errorf("NumClasses() = %d", got)
	}

	t.Setenv("CNNBENCH_NORECORD", "")
	if NoRecord() {
		t.Error("NoRecord() should default to false")
	}
	t.Setenv("CNNBENCH_NORECORD", "yes please")
	if !NoRecord() {
		t.Error("unparsable bool should count as true")
	}
}

func TestVar(t *testing.T) {
	t.Setenv("CNNBENCH_VAR", `  "quoted" `)
	if got := Var("CNNBENCH_VAR"); got != "quoted" {
		t.Errorf("Var() = %q", got)
	}
}

func TestAsMap(t *testing.T) {
	m := AsMap()
	for _, k := range []string{"CNNBENCH_DEBUG", "CNNBENCH_HOST", "CNNBENCH_SEED", "CNNBENCH_DTYPE"} {
		if _, ok := m[k]; !ok {
			t.Errorf("AsMap() missing %s", k)
		}
	}
	if len(Values()) != len(m) {
		t.Error("Values() and AsMap() disagree")
	}
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("CNNBENCH_ORIGINS", "")
	if got := AllowedOrigins(); len(got) != 12 || got[0] != "http://localhost" {
		t.Errorf("AllowedOrigins() = %v", got)
	}

	t.Setenv("CNNBENCH_ORIGINS", "https://bench.example.com,chrome-extension://*")
	got := AllowedOrigins()
	if len(got) != 14 || got[0] != "https://bench.example.com" || got[1] != "chrome-extension://*" {
		t.Errorf("AllowedOrigins() = %v", got)
	}
}
