package sync

import "github.com/dealersoft/dealerdesk/internal/desktop/models"

// Result summarizes one sync cycle. Success is false when the cycle was
// aborted (no user, transport failure, timeout); per-record failures are
// collected in Errors without flipping Success.
type Result struct {
	Success bool
	Pushed  map[models.Kind]int
	Pulled  map[models.Kind]int
	Errors  []error
}

func newResult() *Result {
	return &Result{
		Pushed: map[models.Kind]int{},
		Pulled: map[models.Kind]int{},
	}
}

func (r *Result) PushedTotal() int {
	total := 0
	for _, n := range r.Pushed {
		total += n
	}
	return total
}

func (r *Result) PulledTotal() int {
	total := 0
	for _, n := range r.Pulled {
		total += n
	}
	return total
}
