package pipeline

import (
	"context"
	"fmt"
	"time"
)

// ComponentStatus describes one stage component
type ComponentStatus struct {
	Initialized bool   `json:"initialized"`
	Type        string `json:"type"`
	Detail      string `json:"detail,omitempty"`
}

// Status is the health snapshot of a pipeline
type Status struct {
	Status       string                     `json:"status"`
	Components   map[string]ComponentStatus `json:"components"`
	Timestamp    time.Time                  `json:"timestamp"`
	Uptime       string                     `json:"uptime"`
	ConfigLoaded bool                       `json:"config_loaded"`
}

type gatewayInfo interface {
	ProviderName() string
	ModelName() string
}

// Status reports every component and the document count of the store
func (p *Pipeline) Status(ctx context.Context) Status {
	components := map[string]ComponentStatus{
		"generator":  component(p.deps.Generator),
		"classifier": component(p.deps.Classifier),
		"extractor":  component(p.deps.Extractor),
		"retriever":  component(p.deps.Retriever),
		"verifier":   component(p.deps.Verifier),
		"corrector":  component(p.deps.Corrector),
		"detector":   component(p.deps.Detector),
		"scorer":     component(p.deps.Scorer),
	}

	if gw, ok := p.deps.Generator.(gatewayInfo); ok {
		c := components["generator"]
		c.Detail = gw.ProviderName() + "/" + gw.ModelName()
		components["generator"] = c
	}

	status := "running"
	if p.deps.Store != nil {
		c := component(p.deps.Store)
		n, err := p.deps.Store.Count(ctx)
		if err != nil {
			c.Detail = fmt.Sprintf("%s backend unavailable: %v", p.deps.Store.Backend(), err)
			status = "degraded"
		} else {
			c.Detail = fmt.Sprintf("%s backend, %d documents", p.deps.Store.Backend(), n)
		}
		components["store"] = c
	}

	return Status{
		Status:       status,
		Components:   components,
		Timestamp:    p.now().UTC(),
		Uptime:       time.Since(p.startedAt).Round(time.Second).String(),
		ConfigLoaded: p.config != nil,
	}
}

func component(v any) ComponentStatus {
	if v == nil {
		return ComponentStatus{}
	}
	return ComponentStatus{Initialized: true, Type: fmt.Sprintf("%T", v)}
}
