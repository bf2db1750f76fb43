package notice

// Report is what a trigger gets back from a push or test: the counts, one
// line per attempted service and the notices to show.
type Report struct {
	DispatchID string           `json:"dispatch_id,omitempty"`
	Success    int              `json:"success"`
	Failure    int              `json:"failure"`
	Services   []ServiceOutcome `json:"services,omitempty"`
	Notices    []Notice         `json:"notices"`
}

type ServiceOutcome struct {
	Service    string `json:"service"`
	Name       string `json:"name"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// OK reports whether nothing failed and at least one service was reached.
func (r Report) OK() bool { return r.Failure == 0 && r.Success > 0 }

// Texts renders every notice for a chat reply.
func (r Report) Texts() []string {
	out := make([]string, 0, len(r.Notices))
	for _, n := range r.Notices {
		out = append(out, n.Text())
	}
	return out
}
