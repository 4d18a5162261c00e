// Package main provides ecsbench, a benchmark and scenario harness
// for package ecsdb.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/natefinch/atomic"

	"github.com/ecsforge/ecsdb"
)

// Scenario describes one reproducible workload: populate entities with
// Position/Velocity, run N ticks mutating them, then roll back and
// report timings. Scenario files are JSONC (comments/trailing commas
// allowed), standardized through hujson the same way tk's config files
// are.
type Scenario struct {
	Name         string `json:"name"`
	EntityCount  int    `json:"entity_count"`
	Ticks        int    `json:"ticks"`
	RollbackBack int    `json:"rollback_back"`
	Retention    int    `json:"retention,omitempty"`
}

// Result is one scenario's timing report, written as JSON to -out.
type Result struct {
	Scenario     string        `json:"scenario"`
	EntityCount  int           `json:"entity_count"`
	Ticks        int           `json:"ticks"`
	PopulateTime time.Duration `json:"populate_time_ns"`
	TickTime     time.Duration `json:"tick_time_ns"`
	QueryTime    time.Duration `json:"query_time_ns"`
	RollbackTime time.Duration `json:"rollback_time_ns"`
	MatchedCount int           `json:"matched_count"`
}

type position struct{ X, Y float64 }

type velocity struct{ DX, DY float64 }

func main() {
	scenarioPath := flag.String("scenario", "", "Path to a JSONC scenario file (see Scenario)")
	out := flag.String("out", "", "Path to write the JSON result report (stdout if empty)")
	entityCount := flag.Int("entities", 100_000, "Entity count, if no -scenario file is given")
	ticks := flag.Int("ticks", 60, "Number of ticks to simulate, if no -scenario file is given")
	rollbackBack := flag.Int("rollback", 30, "How many ticks to roll back at the end")

	flag.Parse()

	scenario := Scenario{
		Name:         "default",
		EntityCount:  *entityCount,
		Ticks:        *ticks,
		RollbackBack: *rollbackBack,
	}

	if *scenarioPath != "" {
		loaded, err := loadScenario(*scenarioPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}

		scenario = loaded
	}

	result := run(scenario)

	if err := writeResult(*out, result); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-provided benchmark input
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Scenario{}, fmt.Errorf("invalid JSONC in %s: %w", path, err)
	}

	var s Scenario
	if err := json.Unmarshal(standardized, &s); err != nil {
		return Scenario{}, fmt.Errorf("invalid scenario JSON in %s: %w", path, err)
	}

	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return s, nil
}

func run(s Scenario) Result {
	w := ecsdb.NewWorld(ecsdb.Options{Retention: s.Retention})

	posID := ecsdb.Register[position](w)
	velID := ecsdb.Register[velocity](w)

	positions := ecsdb.StorageFor[position](w, posID)
	velocities := ecsdb.StorageFor[velocity](w, velID)

	result := Result{Scenario: s.Name, EntityCount: s.EntityCount, Ticks: s.Ticks}

	populateStart := time.Now()

	for i := 0; i < s.EntityCount; i++ {
		e, err := w.Spawn()
		if err != nil {
			break
		}

		_ = positions.Set(w.Tick(), e.Index(), position{X: float64(i)})
		_ = velocities.Set(w.Tick(), e.Index(), velocity{DX: 1, DY: 1})
	}

	result.PopulateTime = time.Since(populateStart)

	tickStart := time.Now()

	rollbackTarget := w.Tick()

	for tick := 0; tick < s.Ticks; tick++ {
		if err := w.AdvanceTick(); err != nil {
			break
		}

		if tick+1 == s.Ticks-s.RollbackBack {
			rollbackTarget = w.Tick()
		}

		ecsdb.Query2Mut[velocity, position](w, velID, posID, nil, nil,
			func(_ ecsdb.Entity, vel ecsdb.Handle[velocity], pos *ecsdb.MutHandle[position]) {
				p := pos.Get()
				v := vel.Get()
				p.X += v.DX
				p.Y += v.DY
				pos.Set(p)
			})
	}

	result.TickTime = time.Since(tickStart)

	queryStart := time.Now()

	matched := 0
	w.Each(ecsdb.QuerySpec{Required: []ecsdb.ComponentID{posID, velID}}, func(uint32) {
		matched++
	})

	result.QueryTime = time.Since(queryStart)
	result.MatchedCount = matched

	rollbackStart := time.Now()

	if s.RollbackBack > 0 {
		_ = w.Rollback(rollbackTarget)
	}

	result.RollbackTime = time.Since(rollbackStart)

	return result
}

func writeResult(path string, r Result) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	data = append(data, '\n')

	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}

	if err := atomic.WriteFile(path, strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("write result %s: %w", path, err)
	}

	return nil
}
