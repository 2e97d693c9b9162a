package models

import "fmt"

// Outcome is the state of a single download job.
type Outcome int

const (
	Pending Outcome = iota
	Fetched
	Converted
	FetchFailed
	ConvertFailed
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "PENDING"
	case Fetched:
		return "FETCHED"
	case Converted:
		return "CONVERTED"
	case FetchFailed:
		return "FETCH_FAILED"
	case ConvertFailed:
		return "CONVERT_FAILED"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Terminal reports whether no further transition is possible.
func (o Outcome) Terminal() bool {
	return o == Converted || o == FetchFailed || o == ConvertFailed
}

// DownloadJob is owned by exactly one worker for the lifetime of a batch.
type DownloadJob struct {
	ID       string
	RawDir   string
	FastqDir string
	Outcome  Outcome
}

// Advance moves the job to next. Transitions only ever go forward:
// Pending -> Fetched -> Converted, Pending -> FetchFailed, Fetched -> ConvertFailed.
func (j *DownloadJob) Advance(next Outcome) error {
	ok := false
	switch j.Outcome {
	case Pending:
		ok = next == Fetched || next == FetchFailed
	case Fetched:
		ok = next == Converted || next == ConvertFailed
	}
	if !ok {
		return fmt.Errorf("job %s: invalid transition %s -> %s", j.ID, j.Outcome, next)
	}
	j.Outcome = next
	return nil
}
