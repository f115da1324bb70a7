// Package replay reads compressed run logs back into per-run records and
// re-executes recorded runs to check they still end the same way.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"voxelcraft.ai/gametest/internal/gametest/runner"
	"voxelcraft.ai/gametest/internal/host"
	persistlog "voxelcraft.ai/gametest/internal/persistence/log"
	"voxelcraft.ai/gametest/internal/protocol"
)

// Run is everything the log holds about one run.
type Run struct {
	Started  *protocol.RunStartedMsg
	Finished *protocol.RunFinishedMsg
	Steps    int
}

// Log is the content of a runs directory, runs in first-seen order.
type Log struct {
	Runs    []*Run
	Batches int
	Files   int
}

// Finished returns runs with a RUN_FINISHED, optionally limited to suite.
func (l *Log) Finished(suite string) []*Run {
	var out []*Run
	for _, r := range l.Runs {
		if r.Finished == nil {
			continue
		}
		if suite != "" && r.Finished.Suite != suite {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (l *Log) Unfinished() int {
	n := 0
	for _, r := range l.Runs {
		if r.Finished == nil {
			n++
		}
	}
	return n
}

// Read scans every runs-*.jsonl.zst file under dir.
func Read(dir string) (*Log, error) {
	files, err := persistlog.ListFiles(dir, persistlog.RunsPrefix)
	if err != nil {
		return nil, err
	}
	l := &Log{Files: len(files)}
	byID := map[string]*Run{}
	rec := func(id string) *Run {
		r := byID[id]
		if r == nil {
			r = &Run{}
			byID[id] = r
			l.Runs = append(l.Runs, r)
		}
		return r
	}
	for _, path := range files {
		err := persistlog.ScanFile(path, func(line []byte) error {
			base, err := protocol.DecodeBase(line)
			if err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			switch base.Type {
			case protocol.TypeRunStarted:
				var m protocol.RunStartedMsg
				if err := json.Unmarshal(line, &m); err != nil {
					return err
				}
				rec(m.RunID).Started = &m
			case protocol.TypeStep:
				var m protocol.StepMsg
				if err := json.Unmarshal(line, &m); err != nil {
					return err
				}
				rec(m.RunID).Steps++
			case protocol.TypeRunFinished:
				var m protocol.RunFinishedMsg
				if err := json.Unmarshal(line, &m); err != nil {
					return err
				}
				rec(m.RunID).Finished = &m
			case protocol.TypeSummary:
				l.Batches++
			default:
				return fmt.Errorf("unknown message type %q", base.Type)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return l, nil
}

// Verify re-executes each finished run with d, at its recorded origin and
// rotation, and compares status, tick and world digest. d must be built from
// the same config the runs were recorded with. Runs that never started (no
// RUN_STARTED, e.g. a missing fixture) are re-run at d.Origin.
func Verify(ctx context.Context, d *runner.Driver, runs []*Run) (int, error) {
	runs = append([]*Run(nil), runs...)
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Finished.FinishedAtUnixMS < runs[j].Finished.FinishedAtUnixMS })

	base := *d
	checked := 0
	var mismatches []string
	for _, r := range runs {
		want := r.Finished
		drv := base
		if r.Started != nil {
			drv.Origin = host.Vec3i{X: r.Started.Origin[0], Y: r.Started.Origin[1], Z: r.Started.Origin[2]}
		}
		def, ok := d.Registry.Lookup(want.Suite, want.Name)
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s:%s no longer registered", want.Suite, want.Name))
			continue
		}
		got, err := drv.RunOne(ctx, def, want.Rotation)
		if err != nil {
			return checked, err
		}
		checked++
		if string(got.Status) != want.Status || got.Tick != want.Tick || got.WorldDigest != want.WorldDigest {
			mismatches = append(mismatches, fmt.Sprintf("%s:%s rot=%d: got %s tick=%d digest=%s want %s tick=%d digest=%s",
				want.Suite, want.Name, want.Rotation, got.Status, got.Tick, got.WorldDigest, want.Status, want.Tick, want.WorldDigest))
		}
	}
	if len(mismatches) > 0 {
		return checked, fmt.Errorf("%d mismatches:\n  %s", len(mismatches), strings.Join(mismatches, "\n  "))
	}
	return checked, nil
}
