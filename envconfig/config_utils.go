// config_utils.go - Hilfsfunktionen fuer Umgebungsvariablen
// Enthaelt: Bool, String, Uint, Uint64, AsMap, Values

package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// BoolWithDefault returns a reader for a boolean variable. A set but
// unparsable value counts as true.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a reader for a boolean variable defaulting to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// String returns a reader for a string variable.
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// Uint returns a reader for an unsigned variable with a default.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Uint64 returns a reader for a 64-bit unsigned variable with a default.
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// EnvVar describes one configuration variable and its effective value.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every configuration variable keyed by name.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"CNNBENCH_DEBUG":       {"CNNBENCH_DEBUG", LogLevel(), "Show additional debug information (e.g. CNNBENCH_DEBUG=1)"},
		"CNNBENCH_HOST":        {"CNNBENCH_HOST", Host(), "Listen address for the API server (default 127.0.0.1:11535)"},
		"CNNBENCH_HOME":        {"CNNBENCH_HOME", Home(), "Directory for the results database"},
		"CNNBENCH_NUM_THREADS": {"CNNBENCH_NUM_THREADS", NumThreads(), "Number of CPU workers used for forward passes"},
		"CNNBENCH_DATA_FORMAT": {"CNNBENCH_DATA_FORMAT", DataFormat(), "Tensor layout, NCHW or NHWC (default NCHW)"},
		"CNNBENCH_DTYPE":       {"CNNBENCH_DTYPE", DType(), "Parameter storage type: f32, f16 or bf16 (default f32)"},
		"CNNBENCH_NUM_CLASSES": {"CNNBENCH_NUM_CLASSES", NumClasses(), "Classifier width appended to each model (default 1001)"},
		"CNNBENCH_SEED":        {"CNNBENCH_SEED", Seed(), "Random seed for weights and synthetic inputs"},
		"CNNBENCH_NORECORD":    {"CNNBENCH_NORECORD", NoRecord(), "Do not record benchmark runs"},
		"CNNBENCH_ORIGINS":     {"CNNBENCH_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
	}
}

// Values returns every configuration value formatted as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
