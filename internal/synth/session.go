// Package synth implements the metadata synthesizer (spec §4.7): session
// statements handled entirely locally, static-SELECT evaluation, and the
// INFORMATION_SCHEMA-to-SHOW rewrite table. None of its outputs touch the
// backend gateway.
package synth

import (
	"regexp"
	"strings"

	"github.com/nethalo/tabproxy/internal/session"
	"github.com/nethalo/tabproxy/internal/statement"
)

// SET/USE statements are recognized by text pattern rather than AST shape:
// the parser's representation of SET's many sub-forms (SET NAMES, SET
// CHARACTER SET, SET TRANSACTION, SET <sysvar>, SET @uservar) is one of
// the few areas where matching the teacher's own regex-pre-pass idiom
// (`internal/parser/sql.go`'s `reOptimizeTable`/`reAlterTablespace`) is
// more reliable than chasing a parser AST shape across versions.
var (
	reSetNames          = regexp.MustCompile(`(?i)^SET\s+NAMES\s+'?([A-Za-z0-9_]+)'?(?:\s+COLLATE\s+'?([A-Za-z0-9_]+)'?)?\s*$`)
	reSetCharacterSet   = regexp.MustCompile(`(?i)^SET\s+CHARACTER\s+SET\s+'?([A-Za-z0-9_]+)'?\s*$`)
	reSetTransaction    = regexp.MustCompile(`(?i)^SET\s+(?:SESSION\s+|GLOBAL\s+)?TRANSACTION\s+(.+)$`)
	reIsolationLevel    = regexp.MustCompile(`(?i)ISOLATION\s+LEVEL\s+(REPEATABLE\s+READ|READ\s+COMMITTED|READ\s+UNCOMMITTED|SERIALIZABLE)`)
	reReadOnly          = regexp.MustCompile(`(?i)READ\s+ONLY`)
	reSetUserVar        = regexp.MustCompile(`(?is)^SET\s+@([A-Za-z_][A-Za-z0-9_]*)\s*(?::?=)\s*(.+)$`)
	reSetSystemVar      = regexp.MustCompile(`(?is)^SET\s+(?:SESSION\s+|GLOBAL\s+|@@session\.|@@global\.|@@)?([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.+)$`)
	reUse               = regexp.MustCompile(`(?is)^USE\s+` + "`?" + `([A-Za-z_][A-Za-z0-9_$]*)` + "`?" + `\s*;?\s*$`)
)

// emptyResult is what a successful SET/USE returns: zero columns, zero
// rows, matching a MySQL OK packet's effect on a client expecting a
// resultset shape.
var emptyResult = &statement.SynthesizedResult{}

// HandleSessionStatement recognizes SET/USE forms and applies them to sess,
// returning a Fate and true. It returns false (not handled) for anything
// it doesn't recognize as a session statement, so callers fall back to
// passing the statement through.
func HandleSessionStatement(text string, sess *session.Session) (statement.Fate, bool) {
	trimmed := strings.TrimSpace(text)

	if m := reSetNames.FindStringSubmatch(trimmed); m != nil {
		sess.SetNames(m[1], m[2])
		return synthesizedOK(), true
	}
	if m := reSetCharacterSet.FindStringSubmatch(trimmed); m != nil {
		sess.SetCharacterSet(m[1])
		return synthesizedOK(), true
	}
	if m := reSetTransaction.FindStringSubmatch(trimmed); m != nil {
		clause := m[1]
		isolation := ""
		if im := reIsolationLevel.FindStringSubmatch(clause); im != nil {
			isolation = strings.ToUpper(strings.Join(strings.Fields(im[1]), " "))
		}
		sess.SetTransaction(isolation, reReadOnly.MatchString(clause))
		return synthesizedOK(), true
	}
	if m := reSetUserVar.FindStringSubmatch(trimmed); m != nil {
		sess.SetUserVar(m[1], unquoteLiteral(m[2]))
		return synthesizedOK(), true
	}
	if m := reSetSystemVar.FindStringSubmatch(trimmed); m != nil {
		sess.SetSystemVar(strings.ToLower(m[1]), unquoteLiteral(m[2]))
		return synthesizedOK(), true
	}
	if m := reUse.FindStringSubmatch(trimmed); m != nil {
		sess.UseDatabase(m[1])
		return synthesizedOK(), true
	}
	return statement.Fate{}, false
}

func synthesizedOK() statement.Fate {
	return statement.Fate{Tag: statement.FateSynthesize, Synthesized: emptyResult}
}

func unquoteLiteral(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ";")
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
