package data

import (
	"fmt"
	"os"
	"strings"

	"github.com/l1jgo/systick/internal/core/phase"
	"github.com/l1jgo/systick/internal/core/system"
	"gopkg.in/yaml.v3"
)

// ScheduleEntry overrides how one system is scheduled. Unset fields keep the
// descriptor the system was built with.
type ScheduleEntry struct {
	Name      string   `yaml:"name"`
	Mode      string   `yaml:"mode"` // "sequential" or "parallel"
	Group     string   `yaml:"group"`
	Priority  *int     `yaml:"priority"`
	DependsOn []string `yaml:"depends_on"`
	Phases    []string `yaml:"phases"`
	Disabled  bool     `yaml:"disabled"`

	mode   system.ExecutionMode
	phases phase.Set
}

type scheduleFile struct {
	Systems []ScheduleEntry `yaml:"systems"`
}

// ScheduleTable holds descriptor overrides keyed by system id.
type ScheduleTable struct {
	entries map[string]*ScheduleEntry
}

// LoadScheduleTable loads schedule.yaml.
func LoadScheduleTable(path string) (*ScheduleTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	return ParseScheduleTable(raw)
}

func ParseScheduleTable(raw []byte) (*ScheduleTable, error) {
	var f scheduleFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}
	t := &ScheduleTable{entries: make(map[string]*ScheduleEntry, len(f.Systems))}
	for i := range f.Systems {
		e := &f.Systems[i]
		if e.Name == "" {
			return nil, fmt.Errorf("schedule entry %d: missing name", i)
		}
		if _, dup := t.entries[e.Name]; dup {
			return nil, fmt.Errorf("schedule entry %q: listed twice", e.Name)
		}
		switch strings.ToLower(e.Mode) {
		case "", "sequential":
			e.mode = system.ModeSequential
		case "parallel":
			e.mode = system.ModeParallel
		default:
			return nil, fmt.Errorf("schedule entry %q: unknown mode %q", e.Name, e.Mode)
		}
		for _, name := range e.Phases {
			p, err := phase.Parse(name)
			if err != nil {
				return nil, fmt.Errorf("schedule entry %q: %w", e.Name, err)
			}
			e.phases = e.phases.Add(p)
		}
		t.entries[e.Name] = e
	}
	return t, nil
}

// Get returns the override for name, or nil if none.
func (t *ScheduleTable) Get(name string) *ScheduleEntry {
	return t.entries[name]
}

// Disabled reports whether the manifest switches name off.
func (t *ScheduleTable) Disabled(name string) bool {
	e := t.entries[name]
	return e != nil && e.Disabled
}

// Apply returns d with the overrides listed for d.Name. A nil table returns
// d unchanged.
func (t *ScheduleTable) Apply(d system.Descriptor) system.Descriptor {
	if t == nil {
		return d
	}
	e := t.entries[d.Name]
	if e == nil {
		return d
	}
	if e.Mode != "" {
		d.Mode = e.mode
		if e.mode == system.ModeSequential {
			d.Group = ""
		}
	}
	if e.Group != "" {
		d.Group = e.Group
	}
	if e.Priority != nil {
		d.Priority = *e.Priority
	}
	if len(e.DependsOn) > 0 {
		d.Dependencies = append([]string(nil), e.DependsOn...)
	}
	if !e.phases.IsEmpty() {
		d.Phases = e.phases
	}
	return d
}

// Count returns the total number of overrides loaded.
func (t *ScheduleTable) Count() int {
	return len(t.entries)
}
