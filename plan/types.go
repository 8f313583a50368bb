package plan

// Plan is a plan as reported by the server. The stage vocabulary is
// server-defined; this client passes stages through untouched.
type Plan struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Stage    string     `json:"stage"`
	Summary  string     `json:"summary,omitempty"`
	Steps    []Step     `json:"steps,omitempty"`
	Evidence []Evidence `json:"evidence,omitempty"`
	Updated  string     `json:"updatedAt,omitempty"`
}

// Step is one unit of work inside a plan
type Step struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// Evidence is a note attached to a plan or one of its steps
type Evidence struct {
	ID     string `json:"id"`
	StepID string `json:"stepId,omitempty"`
	Note   string `json:"note"`
	URL    string `json:"url,omitempty"`
}
