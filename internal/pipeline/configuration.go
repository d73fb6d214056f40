package pipeline

import (
	"github.com/Iron-Ham/mergepipe/internal/filter"
	"github.com/Iron-Ham/mergepipe/internal/rule"
)

// Configuration is a loaded pipeline document. It is read-only once handed
// to an orchestrator.
type Configuration struct {
	// DetectRenames enables rename detection when diffing branches.
	DetectRenames bool

	// Filters restrict which changed paths a multi-branch merge touches.
	Filters []filter.Filter

	// Rules are the named rules steps and branches may refer to.
	Rules map[string]rule.Rule

	// Pipelines are tried in order by the router.
	Pipelines []Pipeline
}

// NewConfiguration returns an empty configuration with rename detection on.
func NewConfiguration() *Configuration {
	return &Configuration{
		DetectRenames: true,
		Rules:         make(map[string]rule.Rule),
	}
}

// Pipeline returns the pipeline named name.
func (c *Configuration) Pipeline(name string) (Pipeline, bool) {
	for _, p := range c.Pipelines {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}
