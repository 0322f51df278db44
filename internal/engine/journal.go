package engine

import (
	"path/filepath"
	"time"

	"mkwebuser/internal/fsatomic"
	"mkwebuser/internal/plan"
	"mkwebuser/internal/steps"
)

// journalRecord is the durable image of one transaction. It survives
// crashes so a resumed run knows what the interrupted one did, in
// particular whether it was the creator of the account.
type journalRecord struct {
	TxID       string       `json:"txId"`
	Request    plan.Request `json:"request"`
	Steps      []plan.Step  `json:"steps"`
	State      steps.State  `json:"state"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt *time.Time   `json:"finishedAt,omitempty"`
	Outcome    Outcome      `json:"outcome,omitempty"`
}

func journalPath(stateDir, username string) string {
	return filepath.Join(stateDir, "tx."+username+".json")
}

// loadPriorState recovers the executor state of an earlier unfinished run
// for the same request, so its created-by-us marker and loop device are not
// lost across a crash.
func loadPriorState(stateDir string, req plan.Request) steps.State {
	var rec journalRecord
	ok, err := fsatomic.LoadJSON(journalPath(stateDir, req.Username), &rec)
	if err != nil || !ok {
		return steps.State{}
	}
	if rec.FinishedAt != nil && rec.Outcome != OutcomeRollbackIncomplete {
		// completed cleanly; nothing worth inheriting
		return steps.State{}
	}
	if rec.Request != req {
		return steps.State{}
	}
	return rec.State
}

func (e *Engine) saveJournal(rec *journalRecord) {
	if err := fsatomic.SaveJSON(journalPath(e.cfg.StateDir, rec.Request.Username), rec, 0o600); err != nil {
		e.log.Warn().Err(err).Msg("journal save failed")
	}
}
