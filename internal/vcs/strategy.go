package vcs

import (
	"sort"
)

// Side selects one input of a two-way merge.
type Side int

const (
	// SideFirst keeps the first (our) input.
	SideFirst Side = iota
	// SideSecond keeps the second (their) input.
	SideSecond
)

// Strategy describes one entry of the merge strategy table.
type Strategy struct {
	Name string
	// ThreeWay is true when the strategy merges against an explicit base.
	ThreeWay bool
	// Keep is the side a two-way strategy resolves to.
	Keep Side
}

// DefaultStrategy is used when git-merge is configured without a strategy.
const DefaultStrategy = "recursive"

// recursive and ort both run git's ort machinery through merge-tree; git
// itself has treated recursive as an alias for ort since 2.50.
var strategies = map[string]Strategy{
	"recursive": {Name: "recursive", ThreeWay: true},
	"ort":       {Name: "ort", ThreeWay: true},
	"ours":      {Name: "ours", Keep: SideFirst},
	"theirs":    {Name: "theirs", Keep: SideSecond},
}

// LookupStrategy returns the strategy registered under name.
func LookupStrategy(name string) (Strategy, bool) {
	s, ok := strategies[name]
	return s, ok
}

// StrategyNames returns the supported strategy names, sorted.
func StrategyNames() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
