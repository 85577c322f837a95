// Package orchestrator implements the per-statement state machine (spec
// §4.10) tying classification, rewriting, gating, dispatch, and result
// adaptation together: received → classified → rewritten → gated →
// dispatched|synthesized|empty|rejected → adapted → replied.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/nethalo/tabproxy/internal/adapter"
	"github.com/nethalo/tabproxy/internal/astfacade"
	"github.com/nethalo/tabproxy/internal/classifier"
	"github.com/nethalo/tabproxy/internal/policy"
	"github.com/nethalo/tabproxy/internal/rewrite"
	"github.com/nethalo/tabproxy/internal/session"
	"github.com/nethalo/tabproxy/internal/statement"
	"github.com/nethalo/tabproxy/internal/synth"
)

// maxRewriteIterations bounds the classified/rewritten fixed-point loop
// (spec §4.10: "a hard bound of 4 rewrite iterations prevents
// oscillation").
const maxRewriteIterations = 4

// Config is the subset of the configuration surface (spec §6) the
// orchestrator itself consults, beyond what it hands down to policy.
type Config struct {
	Policy           policy.Config
	UnwrapSubqueries bool
	AutoFixGroupBy   bool
	MaxSubqueryDepth int
	StatementTimeout time.Duration
}

// Dispatcher is the backend round-trip contract the orchestrator dispatches
// through — satisfied by *backend.Gateway; an interface here so tests can
// supply a fake without standing up sqlmock.
type Dispatcher interface {
	Execute(ctx context.Context, stmt statement.Statement, sql string) ([]string, [][]any, error)
}

// Orchestrator owns one client connection's Session and drives every
// statement that arrives on it through the pipeline. Per spec §5 it is
// single-threaded: one task, one connection, no internal locking.
type Orchestrator struct {
	cfg     Config
	backend Dispatcher
	logger  *slog.Logger
	info    synth.ServerInfo

	nextID int64
}

// New builds an Orchestrator for one connection.
func New(cfg Config, be Dispatcher, logger *slog.Logger, info synth.ServerInfo) *Orchestrator {
	return &Orchestrator{cfg: cfg, backend: be, logger: logger, info: info}
}

// Process runs one statement through the full state machine and returns
// the PipelineResult the wire codec relays to the client. sess is the
// connection's Session; ctx carries the per-statement deadline (spec §5).
func (o *Orchestrator) Process(ctx context.Context, sess *session.Session, rawSQL string) statement.PipelineResult {
	o.nextID++
	stmt := statement.Statement{ID: o.nextID, RawSQL: rawSQL, Session: sess.String()}
	start := time.Now()

	if o.cfg.StatementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.StatementTimeout)
		defer cancel()
	}

	o.logger.Debug("statement received", "statement_id", stmt.ID)

	result := o.run(ctx, sess, stmt)
	result.StatementID = stmt.ID
	result.Timing = time.Since(start)

	o.logger.Debug("statement replied", "statement_id", stmt.ID, "success", result.Success, "elapsed", result.Timing)
	return result
}

func (o *Orchestrator) run(ctx context.Context, sess *session.Session, stmt statement.Statement) (result statement.PipelineResult) {
	// stmt is rebound by every accepted rewrite below; its final audit
	// trail is what the result carries.
	defer func() { result.Rewrites = stmt.Rewrites }()

	ast, err := astfacade.Parse(stmt.RawSQL)
	if err != nil {
		o.logger.Info("statement rejected", "statement_id", stmt.ID, "reason", statement.ReasonParseFailure)
		return rejectResult(statement.ReasonParseFailure, fmt.Sprintf("syntax error: %v", err))
	}
	stmt.AST = ast

	for iteration := 0; iteration < maxRewriteIterations; iteration++ {
		kind := classifier.Classify(stmt.RawSQL, stmt.AST)
		o.logger.Debug("statement classified", "statement_id", stmt.ID, "kind", kind, "iteration", iteration)

		switch kind {
		case statement.KindMeta:
			return o.handleMeta(ctx, sess, stmt)

		case statement.KindStatic:
			sel, ok := stmt.AST.(*sqlparser.Select)
			if !ok {
				return rejectResult(statement.ReasonParseFailure, "expected a static SELECT")
			}
			result := synth.EvaluateStaticSelect(sel, sess, o.info)
			return o.adaptSynthesized(stmt.ID, result)

		case statement.KindInfoSchema:
			sel, ok := stmt.AST.(*sqlparser.Select)
			if !ok {
				return rejectResult(statement.ReasonParseFailure, "expected an information-schema SELECT")
			}
			fate := synth.RewriteInformationSchema(sel)
			switch fate.Tag {
			case statement.FateEmptyOk:
				return emptyResult()
			case statement.FateRewriteAndPass:
				return o.dispatch(ctx, stmt, fate.SQL)
			default:
				return rejectResult(statement.ReasonParseFailure, "information-schema rewrite produced no actionable fate")
			}

		case statement.KindParen:
			if unwrapped, ok := rewrite.UnwrapParen(stmt.RawSQL); ok {
				reparsed, err := astfacade.Parse(unwrapped)
				if err != nil {
					// decline: the original paren-wrapped text still goes to
					// the gates as a DataSelect, per the "no rewrite" contract.
					continue
				}
				stmt = stmt.WithText(statement.RewriteParenUnwrap, unwrapped, reparsed)
				continue
			}
			// could not unwrap; treat the statement as a normal data select.
			if v := policy.Evaluate(statement.KindData, stmt.RawSQL, stmt.AST, o.cfg.Policy); !v.Pass {
				o.logger.Info("statement rejected", "statement_id", stmt.ID, "reason", v.Reason)
				return rejectResult(v.Reason, v.Message)
			}
			return o.dispatch(ctx, stmt, stmt.RawSQL)

		case statement.KindWriteDML:
			if v := policy.Evaluate(kind, stmt.RawSQL, stmt.AST, o.cfg.Policy); !v.Pass {
				o.logger.Info("statement rejected", "statement_id", stmt.ID, "reason", v.Reason)
				return rejectResult(v.Reason, v.Message)
			}
			// write gate disabled: falls through to dispatch like any other
			// pass-through statement.
			return o.dispatch(ctx, stmt, stmt.RawSQL)

		case statement.KindData:
			sel, ok := stmt.AST.(*sqlparser.Select)
			if !ok {
				return rejectResult(statement.ReasonParseFailure, "expected a data SELECT")
			}

			if o.cfg.UnwrapSubqueries {
				if newAST, ok := rewrite.UnwrapTableauWrapper(stmt.AST); ok {
					stmt = stmt.WithText(statement.RewriteWrapperUnwrap, astfacade.String(newAST), newAST)
					continue
				}
				maxDepth := o.cfg.MaxSubqueryDepth
				if maxDepth <= 0 {
					maxDepth = 2
				}
				if flattened, ok := rewrite.Flatten(sel, maxDepth); ok {
					stmt = stmt.WithText(statement.RewriteFlatten, astfacade.String(flattened), flattened)
					continue
				}
			}

			if o.cfg.AutoFixGroupBy {
				if completed, ok := rewrite.CompleteGroupBy(sel); ok {
					stmt = stmt.WithText(statement.RewriteGroupByFix, astfacade.String(completed), completed)
					continue
				}
			}

			if v := policy.Evaluate(kind, stmt.RawSQL, stmt.AST, o.cfg.Policy); !v.Pass {
				o.logger.Info("statement rejected", "statement_id", stmt.ID, "reason", v.Reason)
				return rejectResult(v.Reason, v.Message)
			}
			return o.dispatch(ctx, stmt, stmt.RawSQL)

		default: // KindOther: nothing this proxy recognizes specially; pass through.
			return o.dispatch(ctx, stmt, stmt.RawSQL)
		}
	}

	// Fixed point never reached within the iteration bound: dispatch
	// whatever text the loop last settled on rather than oscillate further.
	o.logger.Warn("rewrite loop hit iteration bound", "statement_id", stmt.ID, "bound", maxRewriteIterations)
	if v := policy.Evaluate(statement.KindData, stmt.RawSQL, stmt.AST, o.cfg.Policy); !v.Pass {
		return rejectResult(v.Reason, v.Message)
	}
	return o.dispatch(ctx, stmt, stmt.RawSQL)
}

// handleMeta tries the session-local SET/USE handling first (spec §4.7);
// anything else meta-shaped (SHOW/DESCRIBE/KILL/BEGIN/COMMIT/ROLLBACK)
// passes straight through to the backend, bypassing the gates as
// bypassesGates already encodes.
func (o *Orchestrator) handleMeta(ctx context.Context, sess *session.Session, stmt statement.Statement) statement.PipelineResult {
	if fate, handled := synth.HandleSessionStatement(stmt.RawSQL, sess); handled {
		return o.adaptSynthesized(stmt.ID, fate.Synthesized)
	}
	return o.dispatch(ctx, stmt, stmt.RawSQL)
}

// dispatch sends finalSQL to the backend gateway and adapts the result.
func (o *Orchestrator) dispatch(ctx context.Context, stmt statement.Statement, finalSQL string) statement.PipelineResult {
	columns, rows, err := o.backend.Execute(ctx, stmt, finalSQL)
	if err != nil {
		o.logger.Warn("backend dispatch failed", "statement_id", stmt.ID, "error", err)
		return errorResult(classifyDispatchError(err))
	}
	cols, rows := adapter.Normalize(o.logger, stmt.ID, columns, rows)
	return statement.PipelineResult{Success: true, Columns: cols, Rows: rows}
}

func (o *Orchestrator) adaptSynthesized(statementID int64, result *statement.SynthesizedResult) statement.PipelineResult {
	if result == nil || len(result.Columns) == 0 {
		return emptyResult()
	}
	cols, rows := adapter.Normalize(o.logger, statementID, result.Columns, result.Rows)
	return statement.PipelineResult{Success: true, Columns: cols, Rows: rows}
}

func emptyResult() statement.PipelineResult {
	return statement.PipelineResult{Success: true, Columns: []string{}, Rows: [][]any{}}
}

func rejectResult(reason statement.RejectReason, message string) statement.PipelineResult {
	return statement.PipelineResult{Success: false, Error: fmt.Errorf("%s: %s", reason, message)}
}

func errorResult(err error) statement.PipelineResult {
	return statement.PipelineResult{Success: false, Error: err}
}

// classifyDispatchError turns a backend error into the generic message
// spec §7's error taxonomy assigns backend failures; the pool has already
// classified and acted on (Transient/Fatal) or preserved (QueryError) the
// underlying slot by the time this is called.
func classifyDispatchError(err error) error {
	var deadline interface{ Timeout() bool }
	if errors.As(err, &deadline) {
		return fmt.Errorf("backend timeout: %w", err)
	}
	return err
}
