// Package engine sequences the five provisioning steps into one logical
// unit: apply in order, and on failure undo everything already applied, in
// reverse, best-effort. The OS primitives underneath are not transactional;
// the engine supplies atomicity, resumability and locking itself.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mkwebuser/internal/config"
	"mkwebuser/internal/gateway"
	"mkwebuser/internal/plan"
	"mkwebuser/internal/steps"
)

type Engine struct {
	cfg  config.Config
	gw   gateway.Gateway
	host gateway.Host
	log  zerolog.Logger
}

func New(cfg config.Config, gw gateway.Gateway, host gateway.Host, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, gw: gw, host: host, log: log}
}

// Provision validates req, takes the per-username lock and drives the plan.
// A non-nil error with a nil Result means nothing was touched (validation,
// conflict before any apply, or lock contention). Once any step has been
// applied the outcome is always reported through Result.
func (e *Engine) Provision(ctx context.Context, req plan.Request) (*Result, error) {
	p, err := plan.Build(req, e.cfg.MaxQuotaMiB)
	if err != nil {
		return nil, err
	}

	txID := uuid.NewString()
	unlock, err := acquireUserLock(e.cfg.StateDir, req.Username, txID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, req.Username)
	}
	defer unlock()

	rec := &journalRecord{
		TxID:      txID,
		Request:   req,
		Steps:     p.Steps,
		State:     loadPriorState(e.cfg.StateDir, req),
		StartedAt: time.Now().UTC(),
	}
	sc := &steps.Context{
		Req:   req,
		GW:    e.gw,
		Host:  e.host,
		Log:   e.log.With().Str("tx", txID).Str("user", req.Username).Logger(),
		State: &rec.State,
	}
	e.saveJournal(rec)

	res := e.run(ctx, p, rec, sc)
	now := time.Now().UTC()
	rec.FinishedAt = &now
	rec.Outcome = res.Outcome
	e.saveJournal(rec)

	if res.appliedCount == 0 && !res.rollbackRan && errors.Is(res.Cause, ErrResourceConflict) {
		// conflict detected before any side effect this run; surface it
		// plainly, there is nothing to report rolling back
		return nil, res.Cause
	}
	return res, nil
}

// run walks the plan. Gateway calls get a context that survives caller
// cancellation: a privileged operation mid-flight is never aborted, because
// a half-made OS mutation is worse than a late return. Cancellation and
// timeout are honored between steps instead.
func (e *Engine) run(ctx context.Context, p *plan.Plan, rec *journalRecord, sc *steps.Context) *Result {
	gctx := context.WithoutCancel(ctx)
	res := &Result{TxID: rec.TxID, Plan: p}

	for i := range p.Steps {
		st := &p.Steps[i]
		exec, err := steps.ForKind(st.Kind)
		if err != nil {
			return e.fail(gctx, p, rec, sc, res, i, err, false)
		}
		if err := ctx.Err(); err != nil {
			return e.fail(gctx, p, rec, sc, res, i, fmt.Errorf("provisioning deadline: %w", err), false)
		}

		e.transition(rec, st, plan.StatusApplying)
		done, err := exec.Verify(gctx, sc)
		if err != nil {
			// only a genuine configuration mismatch is a conflict; a probe
			// failing to read host state is an ordinary step failure
			if errors.Is(err, steps.ErrConflict) {
				err = fmt.Errorf("%w: %v", ErrResourceConflict, err)
			} else {
				err = fmt.Errorf("verify %s: %w", st.Kind, err)
			}
			return e.fail(gctx, p, rec, sc, res, i, err, false)
		}
		if done {
			sc.Log.Info().Str("step", string(st.Kind)).Msg("already satisfied, skipping")
			e.transition(rec, st, plan.StatusSatisfied)
			continue
		}

		if err := exec.Apply(gctx, sc); err != nil {
			st.Err = err.Error()
			return e.fail(gctx, p, rec, sc, res, i, fmt.Errorf("step %s: %w", st.Kind, err), true)
		}
		res.appliedCount++
		e.transition(rec, st, plan.StatusApplied)
	}

	res.Outcome = OutcomeSuccess
	return res
}

// fail marks step i failed and rolls back in reverse order. Rollback is
// best-effort: a failing rollback is recorded and the remaining ones still
// run. The original cause is never replaced. Steps that were only verified
// as already satisfied predate this run; they are torn down together with
// the applied ones when an apply failed, but a conflict or probe failure
// must not mutate what it found, so then only this run's applies are undone.
func (e *Engine) fail(gctx context.Context, p *plan.Plan, rec *journalRecord, sc *steps.Context, res *Result, i int, cause error, applyFailed bool) *Result {
	st := &p.Steps[i]
	e.transition(rec, st, plan.StatusFailed)
	res.Cause = cause
	sc.Log.Error().Err(cause).Str("step", string(st.Kind)).Msg("step failed, rolling back")

	if applyFailed {
		// a failed apply can leave a partial resource behind (an attached
		// loop device, a truncated image); the executor's rollback
		// tolerates partial state, so run it for the failed step too
		if exec, kerr := steps.ForKind(st.Kind); kerr == nil {
			res.rollbackRan = true
			if err := exec.Rollback(gctx, sc); err != nil {
				res.RollbackErrs = append(res.RollbackErrs, fmt.Errorf("rollback %s: %w", st.Kind, err))
				res.Residual = append(res.Residual, residualName(st.Kind, p.Request))
				sc.Log.Error().Err(err).Str("step", string(st.Kind)).Msg("cleanup of failed step left a resource behind")
			}
		}
	}

	for j := i - 1; j >= 0; j-- {
		prev := &p.Steps[j]
		switch prev.Status {
		case plan.StatusApplied:
		case plan.StatusSatisfied:
			if !applyFailed {
				continue
			}
		default:
			continue
		}
		exec, err := steps.ForKind(prev.Kind)
		if err != nil {
			res.RollbackErrs = append(res.RollbackErrs, err)
			continue
		}
		res.rollbackRan = true
		if err := exec.Rollback(gctx, sc); err != nil {
			prev.Err = err.Error()
			e.transition(rec, prev, plan.StatusRollbackFailed)
			res.RollbackErrs = append(res.RollbackErrs, fmt.Errorf("rollback %s: %w", prev.Kind, err))
			res.Residual = append(res.Residual, residualName(prev.Kind, p.Request))
			sc.Log.Error().Err(err).Str("step", string(prev.Kind)).Msg("rollback failed, continuing with earlier steps")
			continue
		}
		e.transition(rec, prev, plan.StatusRolledBack)
		sc.Log.Info().Str("step", string(prev.Kind)).Msg("rolled back")
	}

	if len(res.Residual) > 0 {
		res.Outcome = OutcomeRollbackIncomplete
	} else {
		res.Outcome = OutcomeRolledBack
	}
	return res
}

func (e *Engine) transition(rec *journalRecord, st *plan.Step, to plan.Status) {
	now := time.Now().UTC()
	switch to {
	case plan.StatusApplying:
		st.StartedAt = &now
	default:
		st.FinishedAt = &now
	}
	st.Status = to
	e.saveJournal(rec)
}
