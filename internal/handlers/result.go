package handlers

import (
	"errors"
	"fmt"
)

type Outcome int

const (
	Committed Outcome = iota
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what a handler reports for one feed entry. The poll loop commits
// Committed and Skipped results and rolls back Failed ones.
//
// Issues are sub-item problems that did not abort the event, e.g. a role
// naming an unknown contact.
type Result struct {
	Outcome Outcome
	Reason  string
	Err     error
	Issues  []error
}

func Commit(issues ...error) Result {
	return Result{Outcome: Committed, Issues: issues}
}

func Skip(reason string) Result {
	return Result{Outcome: Skipped, Reason: reason}
}

func Fail(err error) Result {
	return Result{Outcome: Failed, Err: err}
}

var (
	ErrUnknownRole      = errors.New("unknown role")
	ErrUnmappedSegment  = errors.New("segment has no support queue")
	ErrMissingTeamsLink = errors.New("team detail service not configured")
)
