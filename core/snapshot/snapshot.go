// Package snapshot reads scheduler inputs from YAML or JSON files so both
// schedulers can run without the upstream ERP.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/foundry/core/dispatch"
	"github.com/kilianp07/foundry/core/model"
	"github.com/kilianp07/foundry/core/planner"
)

// ErrNotFound is returned when no file exists for a scenario.
var ErrNotFound = errors.New("snapshot: scenario not found")

// ResourceProvider supplies the capacity configuration of a scenario,
// overriding the one found in the snapshot file.
type ResourceProvider interface {
	Resources(ctx context.Context, scenario string) (*model.PlannerResource, error)
}

// CalendarSpec generates workdays when a file does not list them.
type CalendarSpec struct {
	From     time.Time   `json:"from" yaml:"from"`
	Days     int         `json:"days" yaml:"days"`
	Holidays []time.Time `json:"holidays,omitempty" yaml:"holidays,omitempty"`
}

type plannerFile struct {
	planner.Snapshot `yaml:",inline"`
	Calendar         *CalendarSpec `json:"calendar,omitempty" yaml:"calendar,omitempty"`
}

// decode unmarshals data by file extension.
func decode(path string, data []byte, out any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, out)
	case ".json":
		return json.Unmarshal(data, out)
	default:
		return fmt.Errorf("unsupported snapshot format: %s", filepath.Ext(path))
	}
}

// ReadPlanner parses a planner snapshot file.
func ReadPlanner(path string) (planner.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return planner.Snapshot{}, err
	}
	var f plannerFile
	if err := decode(path, data, &f); err != nil {
		return planner.Snapshot{}, fmt.Errorf("decode %s: %w", path, err)
	}
	snap := f.Snapshot
	if len(snap.Workdays) == 0 && f.Calendar != nil {
		snap.Workdays = model.NewCalendar(f.Calendar.From, f.Calendar.Days, f.Calendar.Holidays...)
	}
	for id, p := range snap.Parts {
		if p.PartID == "" {
			p.PartID = id
			snap.Parts[id] = p
		}
	}
	return snap, nil
}

// ReadDispatch parses a dispatch input file. Malformed line rules fail the
// whole file since they are configuration.
func ReadDispatch(path string) (dispatch.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return dispatch.Input{}, err
	}
	var in dispatch.Input
	if err := decode(path, data, &in); err != nil {
		return dispatch.Input{}, fmt.Errorf("decode %s: %w", path, err)
	}
	for _, l := range in.Lines {
		if err := l.Validate(); err != nil {
			return dispatch.Input{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	for id, p := range in.Parts {
		if p.MaterialID == "" {
			p.MaterialID = id
			in.Parts[id] = p
		}
	}
	return in, nil
}

// FileSource loads planner snapshots from <dir>/<scenario>.{yaml,yml,json}.
type FileSource struct {
	dir       string
	resources ResourceProvider
}

func NewFileSource(dir string) *FileSource { return &FileSource{dir: dir} }

// SetResourceProvider makes capacities come from p instead of the files.
func (s *FileSource) SetResourceProvider(p ResourceProvider) { s.resources = p }

// Path returns the file backing a scenario.
func (s *FileSource) Path(scenario string) (string, error) {
	if scenario == "" || strings.ContainsAny(scenario, `/\`) || strings.HasPrefix(scenario, ".") {
		return "", fmt.Errorf("invalid scenario name %q", scenario)
	}
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		p := filepath.Join(s.dir, scenario+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, scenario)
}

// LoadSnapshot implements planner.SnapshotSource.
func (s *FileSource) LoadSnapshot(ctx context.Context, scenario string) (planner.Snapshot, error) {
	path, err := s.Path(scenario)
	if err != nil {
		return planner.Snapshot{}, err
	}
	snap, err := ReadPlanner(path)
	if err != nil {
		return planner.Snapshot{}, err
	}
	if snap.Scenario == "" {
		snap.Scenario = scenario
	}
	if s.resources != nil {
		res, err := s.resources.Resources(ctx, scenario)
		if err != nil {
			return planner.Snapshot{}, fmt.Errorf("resources for %s: %w", scenario, err)
		}
		snap.Resources = res
	}
	return snap, nil
}

// Scenarios lists the scenarios available in the directory.
func (s *FileSource) Scenarios() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	seen := map[string]bool{}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		switch strings.ToLower(ext) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if !e.IsDir() && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}
