package desktop

import "fmt"

// Selector strategies accepted in configuration.
const (
	ByIndexStrategy = "index"
	ByIDStrategy    = "id"
	ByTitleStrategy = "title"
	ScanStrategy    = "scan"
)

// Selector is the configuration form of a Probe.
type Selector struct {
	By    string `mapstructure:"by" json:"by"`
	Kind  Kind   `mapstructure:"kind" json:"kind"`
	Index int    `mapstructure:"index" json:"index,omitempty"`
	Value string `mapstructure:"value" json:"value,omitempty"`
}

func (s Selector) Probe() (Probe, error) {
	switch s.By {
	case ByIndexStrategy:
		if s.Index < 0 {
			return Probe{}, fmt.Errorf("index selector needs a non-negative index, got %d", s.Index)
		}
		return ByIndex(s.Kind, s.Index), nil
	case ByIDStrategy:
		if s.Value == "" {
			return Probe{}, fmt.Errorf("id selector requires a value")
		}
		return ByID(s.Value, s.Kind), nil
	case ByTitleStrategy:
		if s.Value == "" {
			return Probe{}, fmt.Errorf("title selector requires a value")
		}
		return ByTitle(s.Value, s.Kind), nil
	case ScanStrategy:
		return FirstOf(s.Kind), nil
	default:
		return Probe{}, fmt.Errorf("unknown selector strategy %q", s.By)
	}
}

// Probes converts a selector chain, keeping its order.
func Probes(selectors []Selector) ([]Probe, error) {
	if len(selectors) == 0 {
		return nil, fmt.Errorf("selector chain is empty")
	}
	probes := make([]Probe, 0, len(selectors))
	for i, s := range selectors {
		p, err := s.Probe()
		if err != nil {
			return nil, fmt.Errorf("selector %d: %w", i, err)
		}
		probes = append(probes, p)
	}
	return probes, nil
}
