package syncer

import (
	"cmp"
	"slices"
	"strings"

	"github.com/kiwi-labs/kiwi/internal/directive"
)

// Entry statuses. Failures are reported as "failed:<reason>".
const (
	StatusUpdated   = "updated"
	StatusRestored  = "restored"
	StatusUpToDate  = "up_to_date"
	StatusAvailable = "update_available"
	StatusMissing   = "missing"
	statusFailed    = "failed"
)

// Result is the outcome for one directive.
type Result struct {
	Name   string `json:"name"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Failed reports whether the entry failed.
func (r Result) Failed() bool {
	return strings.HasPrefix(r.Status, statusFailed)
}

func failed(r Result, err error) Result {
	r.Status = statusFailed + ":" + directive.Reason(err)
	r.Error = err.Error()
	return r
}

// Report summarizes a sync or install run.
type Report struct {
	DryRun         bool        `json:"dry_run,omitempty"`
	Results        []Result    `json:"results"`
	NewlyAvailable []PlanEntry `json:"newly_available,omitempty"`
}

// Updated returns the names that were installed.
func (r *Report) Updated() []string {
	return r.names(func(res Result) bool { return res.Status == StatusUpdated })
}

// Restored returns the names whose pinned file was missing and has been
// downloaded again.
func (r *Report) Restored() []string {
	return r.names(func(res Result) bool { return res.Status == StatusRestored })
}

// UpToDate returns the names that needed no change.
func (r *Report) UpToDate() []string {
	return r.names(func(res Result) bool { return res.Status == StatusUpToDate })
}

// Failed returns the names that failed.
func (r *Report) Failed() []string { return r.names(Result.Failed) }

func (r *Report) names(keep func(Result) bool) []string {
	var out []string
	for _, res := range r.Results {
		if keep(res) {
			out = append(out, res.Name)
		}
	}
	return out
}

func (r *Report) sort() {
	slices.SortStableFunc(r.Results, func(a, b Result) int { return cmp.Compare(a.Name, b.Name) })
}
