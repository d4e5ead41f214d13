package batch

import "fmt"

// Summary is the final accounting of a run.
type Summary struct {
	TaskID    string
	State     State
	Processed int
	Total     int
	Tally     map[OutcomeKind]int
}

func (s Summary) Count(kind OutcomeKind) int {
	return s.Tally[kind]
}

func (s Summary) Status() string {
	downloaded := s.Tally[Downloaded]
	switch {
	case s.State == Cancelled:
		return fmt.Sprintf("Cancelled, %d/%d downloaded.", downloaded, s.Total)
	case downloaded == s.Total:
		return "All downloads complete!"
	default:
		return fmt.Sprintf("Complete, %d/%d downloaded.", downloaded, s.Total)
	}
}

func (s Summary) Details() string {
	return fmt.Sprintf("%d invalid, %d unavailable, %d not found, %d failed",
		s.Tally[InvalidURL], s.Tally[VideoUnavailable], s.Tally[TrackNotFound], s.Tally[Failed])
}
