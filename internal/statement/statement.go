// Package statement holds the data model shared by every stage of the
// pipeline: the Statement a client sent, its Kind, the Fate the synthesizer
// assigns the statements it handles, and the PipelineResult the orchestrator hands back to the wire codec.
package statement

import (
	"time"

	"vitess.io/vitess/go/vt/sqlparser"
)

// Kind is the tagged variant a Statement is classified into.
type Kind string

const (
	KindMeta       Kind = "DDL_LIKE_META" // SHOW/DESCRIBE/USE/SET/KILL/BEGIN/COMMIT/ROLLBACK
	KindStatic     Kind = "STATIC_SELECT"
	KindInfoSchema Kind = "INFO_SCHEMA_SELECT"
	KindWrapped    Kind = "WRAPPED_SELECT"
	KindParen      Kind = "PAREN_SELECT"
	KindData       Kind = "DATA_SELECT"
	KindWriteDML   Kind = "WRITE_DML"
	KindOther      Kind = "OTHER"
)

// RewriteKind names which rewrite stage produced a Rewrite record.
type RewriteKind string

const (
	RewriteParenUnwrap   RewriteKind = "PAREN_UNWRAP"
	RewriteWrapperUnwrap RewriteKind = "WRAPPER_UNWRAP"
	RewriteFlatten       RewriteKind = "SUBQUERY_FLATTEN"
	RewriteGroupByFix    RewriteKind = "GROUP_BY_COMPLETE"
)

// Rewrite is one entry in a Statement's audit trail: what changed, in what
// stage, and in what order. The final entry's After is what was actually
// sent onward (to the backend or the synthesizer).
type Rewrite struct {
	Sequence int
	Kind     RewriteKind
	Before   string
	After    string
}

// Statement is the unit of work flowing through the pipeline.
type Statement struct {
	ID      int64 // monotonic, assigned by the orchestrator; correlation key in logs
	RawSQL  string
	AST     sqlparser.Statement // nil if parsing failed
	Session string              // opaque session id, for log correlation only

	Rewrites []Rewrite
}

// WithText returns a copy of the statement carrying new text and AST,
// appending a Rewrite record. The caller supplies the already-reparsed AST
// (re-parsing is the rewrite stage's job, not the data model's).
func (s Statement) WithText(kind RewriteKind, newText string, newAST sqlparser.Statement) Statement {
	next := s
	next.RawSQL = newText
	next.AST = newAST
	next.Rewrites = append(append([]Rewrite{}, s.Rewrites...), Rewrite{
		Sequence: len(s.Rewrites) + 1,
		Kind:     kind,
		Before:   s.RawSQL,
		After:    newText,
	})
	return next
}

// FateTag is the discriminant of a Fate.
type FateTag string

const (
	FateSynthesize   FateTag = "SYNTHESIZE"
	FatePassThrough  FateTag = "PASS_THROUGH"
	FateRewriteAndPass FateTag = "REWRITE_AND_PASS"
	FateEmptyOk      FateTag = "EMPTY_OK"
	FateReject       FateTag = "REJECT"
)

// RejectReason enumerates why a statement was rejected, for structured
// logging and for picking the wire error code/message (see spec §7).
type RejectReason string

const (
	ReasonParseFailure      RejectReason = "PARSE_FAILURE"
	ReasonWriteBlocked      RejectReason = "WRITE_BLOCKED"
	ReasonUnsupportedFeature RejectReason = "UNSUPPORTED_FEATURE"
	ReasonMissingDatePred   RejectReason = "MISSING_DATE_PREDICATE"
)

// SynthesizedResult is the (columns, rows) pair the metadata synthesizer
// computed locally, with no backend round-trip.
type SynthesizedResult struct {
	Columns []string
	Rows    [][]any
}

// Fate is the synthesizer's verdict on a session statement or an
// information-schema SELECT: what the orchestrator should do with it next.
type Fate struct {
	Tag FateTag

	// Populated depending on Tag.
	Synthesized *SynthesizedResult // FateSynthesize
	SQL         string             // FatePassThrough / FateRewriteAndPass: text to send onward
	Reason      RejectReason       // FateReject
	Message     string             // FateReject: user-facing message
}

// PipelineResult is what the orchestrator returns to the wire codec.
//
// Invariant: if Success, len(row) == len(Columns) for every row in Rows,
// and Error is empty; if !Success, Columns and Rows are both empty and
// Error carries a user-facing message.
type PipelineResult struct {
	StatementID int64
	Success     bool
	Columns     []string
	Rows        [][]any
	Rewrites    []Rewrite
	Timing      time.Duration
	Error       error
}
