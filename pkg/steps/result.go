package steps

import "time"

// Status is the outcome of one step execution.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Result holds the outcome of a step and, for pipelines, of its members in
// execution order.
type Result struct {
	Step      string // qualified name
	Name      string
	Class     string
	Status    Status
	Artifacts []*Artifact
	Outputs   []string // persisted locations
	Elapsed   time.Duration
	Err       error
	Children  []*Result
}

// Failed reports whether the step or any descendant failed.
func (r *Result) Failed() bool {
	if r == nil {
		return false
	}
	if r.Status == StatusFailed {
		return true
	}
	for _, c := range r.Children {
		if c.Failed() {
			return true
		}
	}
	return false
}

// Child returns the direct child result with the given instance name.
func (r *Result) Child(name string) *Result {
	for _, c := range r.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Walk calls fn for r and every descendant, depth first.
func (r *Result) Walk(fn func(*Result)) {
	if r == nil {
		return
	}
	fn(r)
	for _, c := range r.Children {
		c.Walk(fn)
	}
}
