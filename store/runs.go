// runs.go - Laeufe und Ergebnisse lesen und schreiben
// Enthaelt: SaveReport, Runs, Run, Results, DeleteRun

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cnnbench/cnnbench/benchmark"
	"github.com/cnnbench/cnnbench/engine"
	"github.com/cnnbench/cnnbench/ml"
)

// Run is the stored header of one report.
type Run struct {
	ID        string               `json:"id"`
	CreatedAt time.Time            `json:"created_at"`
	System    benchmark.SystemInfo `json:"system"`
	Input     string               `json:"input"`
	Config    benchmark.Config     `json:"config"`
	Results   int                  `json:"results"`
	Models    []string             `json:"models"`
}

// SaveReport stores the run and all of its results in one transaction.
func (s *Store) SaveReport(ctx context.Context, r *benchmark.Report) error {
	config, err := json.Marshal(r.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, os, arch, cpu_cores, go_version, hostname, cpu_features, input, config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Timestamp.UTC(), r.System.OS, r.System.Arch, r.System.CPUCores, r.System.GoVersion,
		r.System.Hostname, strings.Join(r.System.Features, ","), r.Input, string(config))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, res := range r.Results {
		layers := ""
		if len(res.Layers) > 0 {
			b, err := json.Marshal(res.Layers)
			if err != nil {
				return fmt.Errorf("marshal layers: %w", err)
			}
			layers = string(b)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO results (
				run_id, model, batch_size, image_size, data_format, dtype, threads, iterations, dry_run,
				params, flops, param_bytes, activation_bytes,
				total_ns, avg_ns, min_ns, max_ns, p50_ns, p95_ns, stddev_ns,
				throughput, gflops, alloc_per_pass, loss, layers
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, res.Model, res.BatchSize, res.ImageSize, string(res.DataFormat), res.DType, res.Threads, res.Iterations, res.DryRun,
			res.Params, res.FLOPs, res.ParamBytes, res.ActivationBytes,
			int64(res.TotalTime), int64(res.AvgLatency), int64(res.MinLatency), int64(res.MaxLatency),
			int64(res.P50Latency), int64(res.P95Latency), int64(res.StdDev),
			res.Throughput, res.GFLOPS, int64(res.AllocPerPass), res.Loss, layers)
		if err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
	}

	return tx.Commit()
}

// runQuery selects a run header together with its result count and the
// distinct models measured. Callers append WHERE, GROUP BY and ORDER BY.
const runQuery = `
	SELECT r.id, r.created_at, r.os, r.arch, r.cpu_cores, r.go_version, r.hostname, r.cpu_features,
		r.input, r.config, COUNT(res.id), COALESCE(GROUP_CONCAT(DISTINCT res.model), '')
	FROM runs r
	LEFT JOIN results res ON res.run_id = r.id
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var run Run
	var features, config, models string
	if err := sc.Scan(&run.ID, &run.CreatedAt, &run.System.OS, &run.System.Arch, &run.System.CPUCores,
		&run.System.GoVersion, &run.System.Hostname, &features, &run.Input, &config,
		&run.Results, &models); err != nil {
		return run, err
	}
	if features != "" {
		run.System.Features = strings.Split(features, ",")
	}
	if models != "" {
		run.Models = strings.Split(models, ",")
	}
	if err := json.Unmarshal([]byte(config), &run.Config); err != nil {
		return run, fmt.Errorf("unmarshal config of run %s: %w", run.ID, err)
	}
	return run, nil
}

// Runs returns the most recent runs first. limit <= 0 returns all of them.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.conn.QueryContext(ctx, runQuery+`
		GROUP BY r.id
		ORDER BY r.created_at DESC, r.id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Run returns the header of a single run.
func (s *Store) Run(ctx context.Context, runID string) (*Run, error) {
	row := s.conn.QueryRowContext(ctx, runQuery+`
		WHERE r.id = ?
		GROUP BY r.id
	`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	} else if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &run, nil
}

// Results returns the results of one run in insertion order.
func (s *Store) Results(ctx context.Context, runID string) ([]benchmark.Result, error) {
	var exists bool
	if err := s.conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM runs WHERE id = ?)`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT model, batch_size, image_size, data_format, dtype, threads, iterations, dry_run,
			params, flops, param_bytes, activation_bytes,
			total_ns, avg_ns, min_ns, max_ns, p50_ns, p95_ns, stddev_ns,
			throughput, gflops, alloc_per_pass, loss, layers
		FROM results WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []benchmark.Result
	for rows.Next() {
		var r benchmark.Result
		var format, layers string
		var total, avg, minNs, maxNs, p50, p95, stddev, alloc int64
		if err := rows.Scan(&r.Model, &r.BatchSize, &r.ImageSize, &format, &r.DType, &r.Threads, &r.Iterations, &r.DryRun,
			&r.Params, &r.FLOPs, &r.ParamBytes, &r.ActivationBytes,
			&total, &avg, &minNs, &maxNs, &p50, &p95, &stddev,
			&r.Throughput, &r.GFLOPS, &alloc, &r.Loss, &layers); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}

		r.DataFormat = ml.DataFormat(format)
		r.TotalTime = time.Duration(total)
		r.AvgLatency = time.Duration(avg)
		r.MinLatency = time.Duration(minNs)
		r.MaxLatency = time.Duration(maxNs)
		r.P50Latency = time.Duration(p50)
		r.P95Latency = time.Duration(p95)
		r.StdDev = time.Duration(stddev)
		r.AllocPerPass = uint64(alloc)
		if layers != "" {
			var timings []engine.LayerTiming
			if err := json.Unmarshal([]byte(layers), &timings); err != nil {
				return nil, fmt.Errorf("unmarshal layers: %w", err)
			}
			r.Layers = timings
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteRun removes a run and its results.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}
