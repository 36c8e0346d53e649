package api

import (
	"fmt"

	"github.com/cnnbench/cnnbench/benchmark"
	"github.com/cnnbench/cnnbench/convnet"
	"github.com/cnnbench/cnnbench/model"
	"github.com/cnnbench/cnnbench/store"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the cnnbench server logs for details"
	}
}

// ListModelResponse is a single registered model.
type ListModelResponse struct {
	Name         string  `json:"name"`
	ImageSize    int     `json:"image_size"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	Layers       int     `json:"layers"`
	Params       int64   `json:"params"`
}

// ListResponse is the response from [Client.List].
type ListResponse struct {
	Models []ListModelResponse `json:"models"`
}

// ShowRequest selects how a model is instantiated for [Client.Show].
// Zero fields fall back to the server's defaults.
type ShowRequest struct {
	Name       string `json:"name"`
	BatchSize  int    `json:"batch_size,omitempty"`
	DataFormat string `json:"data_format,omitempty"`
	Verbose    bool   `json:"verbose,omitempty"`
}

// ShowResponse is the response from [Client.Show].
type ShowResponse = model.Summary

// BenchRequest is the request passed to [Client.Bench]. Either Models or
// Definition selects what runs; zero fields fall back to the server's
// defaults.
type BenchRequest struct {
	Models     []string            `json:"models,omitempty"`
	Definition *convnet.Definition `json:"definition,omitempty"`

	BatchSizes  []int   `json:"batch_sizes,omitempty"`
	Iterations  int     `json:"iterations,omitempty"`
	WarmupRuns  *int    `json:"warmup_runs,omitempty"`
	Threads     int     `json:"threads,omitempty"`
	DataFormat  string  `json:"data_format,omitempty"`
	DType       string  `json:"dtype,omitempty"`
	NumClasses  int     `json:"num_classes,omitempty"`
	Seed        *uint64 `json:"seed,omitempty"`
	DryRun      bool    `json:"dry_run,omitempty"`
	LayerTiming bool    `json:"layer_timing,omitempty"`

	// Record stores the report in the server's results database.
	Record bool `json:"record,omitempty"`
}

// BenchResponse is the response from [Client.Bench].
type BenchResponse = benchmark.Report

// RunsResponse is the response from [Client.Runs].
type RunsResponse struct {
	Runs []store.Run `json:"runs"`
}

// RunResponse is the response from [Client.Run].
type RunResponse struct {
	store.Run
	Details []benchmark.Result `json:"details"`
}

// VersionResponse is the response from [Client.Version].
type VersionResponse struct {
	Version string `json:"version"`
}
