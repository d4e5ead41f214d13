package database

import (
	"tubegrab/batch"

	sentry "github.com/getsentry/sentry-go"
)

// Journal is a batch.Observer that writes a run and its outcomes into the
// database as events arrive.
type Journal struct {
	db   *Database
	page string
}

func (d *Database) Journal(page string) *Journal {
	return &Journal{db: d, page: page}
}

func (j *Journal) OnProgress(s batch.Snapshot) {
	if err := j.db.StartRun(s.TaskID, j.page, s.State.String(), s.Total); err != nil {
		j.report(err)
		return
	}
	if s.Last != nil {
		record := OutcomeRecord{
			RunID: s.TaskID,
			Index: s.Last.Index,
			Kind:  s.Last.Kind.String(),
			Item:  s.Last.Item.String(),
			Path:  s.Last.Path,
		}
		if s.Last.Err != nil {
			record.Error = s.Last.Err.Error()
		}
		if err := j.db.RecordOutcome(record); err != nil {
			j.report(err)
		}
	}
	if err := j.db.UpdateRun(s.TaskID, s.State.String(), s.Processed, s.Tally[batch.Downloaded], s.Status(), false); err != nil {
		j.report(err)
	}
}

func (j *Journal) OnComplete(s batch.Summary) {
	if err := j.db.UpdateRun(s.TaskID, s.State.String(), s.Processed, s.Count(batch.Downloaded), s.Status(), true); err != nil {
		j.report(err)
	}
}

// OnError is a no-op: rejected tasks never ran and have nothing to journal.
func (j *Journal) OnError(error) {}

func (j *Journal) report(err error) {
	j.db.logger.Errorf("journal write failed: %v", err)
	sentry.CaptureException(err)
}
