package federation

import "strings"

// Source describes one backing source in a plan.
type Source struct {
	Endpoint    string `json:"endpoint"`
	MappingType string `json:"mappingType"`
	Dataset     string `json:"-"`
}

// Planner maps table names onto sources by keyword matching against a
// fixed dictionary, falling back to a designated default when nothing
// matches.
type Planner struct {
	sources map[string]Source
	def     string
}

// NewPlanner builds the planner over the simulated sources.
func NewPlanner() *Planner {
	p := &Planner{sources: make(map[string]Source), def: "analytics"}
	for _, name := range DatasetNames() {
		mapping := "tabular"
		if name == "telemetry" {
			mapping = "timeseries"
		}
		p.sources[name] = Source{
			Endpoint:    "urn:hyprcat:source:" + name,
			MappingType: mapping,
			Dataset:     name,
		}
	}
	return p
}

// Plan resolves the query's FROM table plus any JOIN/UNION references to
// a deduplicated, ordered source list. The plan is never empty.
func (p *Planner) Plan(q *Query) []Source {
	names := append([]string{q.From}, q.Extra...)
	var plan []Source
	seen := make(map[string]bool)
	for _, name := range names {
		src := p.resolve(name)
		if !seen[src.Dataset] {
			seen[src.Dataset] = true
			plan = append(plan, src)
		}
	}
	return plan
}

func (p *Planner) resolve(table string) Source {
	lowered := strings.ToLower(table)
	if src, ok := p.sources[lowered]; ok {
		return src
	}
	for keyword, src := range p.sources {
		if strings.Contains(lowered, keyword) {
			return src
		}
	}
	return p.sources[p.def]
}
