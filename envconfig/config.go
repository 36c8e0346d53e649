// Package envconfig reads cnnbench configuration from the environment.
//
// Every setting has an accessor returning a typed value with its default
// applied. AsMap lists them all for help output and the env command.
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Host returns the listen address for the API server.
// Configurable via CNNBENCH_HOST, default 127.0.0.1:11535.
func Host() string {
	const defaultHost, defaultPort = "127.0.0.1", "11535"

	s := strings.TrimSpace(Var("CNNBENCH_HOST"))
	s = strings.TrimPrefix(strings.TrimPrefix(s, "http://"), "https://")
	if s == "" {
		return net.JoinHostPort(defaultHost, defaultPort)
	}

	host, port, err := net.SplitHostPort(s)
	if err != nil {
		host, port = s, defaultPort
		if ip := net.ParseIP(strings.Trim(s, "[]")); ip != nil {
			host = ip.String()
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return net.JoinHostPort(host, port)
}

// AllowedOrigins returns the CORS origins accepted by the API server.
// Configurable via CNNBENCH_ORIGINS (comma separated); localhost origins
// are always allowed.
func AllowedOrigins() (origins []string) {
	if s := Var("CNNBENCH_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	return origins
}

// Home returns the state directory holding the results database.
// Configurable via CNNBENCH_HOME, default $HOME/.cnnbench.
func Home() string {
	if s := Var("CNNBENCH_HOME"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "cnnbench")
	}

	return filepath.Join(home, ".cnnbench")
}

// NumThreads returns the number of CPU workers used by the engine.
// Configurable via CNNBENCH_NUM_THREADS, default runtime.NumCPU().
func NumThreads() int {
	if n := int(threads()); n > 0 {
		return n
	}
	return runtime.NumCPU()
}

var threads = Uint("CNNBENCH_NUM_THREADS", 0)

// DataFormat returns the tensor layout, NCHW or NHWC.
// Configurable via CNNBENCH_DATA_FORMAT, default NCHW.
func DataFormat() string {
	switch s := strings.ToUpper(Var("CNNBENCH_DATA_FORMAT")); s {
	case "NCHW", "NHWC":
		return s
	case "":
	default:
		slog.Warn("invalid data format, using default", "value", s, "default", "NCHW")
	}
	return "NCHW"
}

// DType returns the parameter storage type: f32, f16 or bf16.
// Configurable via CNNBENCH_DTYPE, default f32.
func DType() string {
	switch s := strings.ToLower(Var("CNNBENCH_DTYPE")); s {
	case "f32", "f16", "bf16":
		return s
	case "":
	default:
		slog.Warn("invalid dtype, using default", "value", s, "default", "f32")
	}
	return "f32"
}

// LogLevel returns the log level.
// Configurable via CNNBENCH_DEBUG: 0/false is INFO (default), 1/true is
// DEBUG, 2 is TRACE.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("CNNBENCH_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var returns an environment variable stripped of surrounding quotes and
// whitespace.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
