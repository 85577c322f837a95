// Package session holds per-client state (spec §3 Session): the currently
// selected database, user-defined variable bindings, and the shadow
// system-variable values the proxy tracks without forwarding to the
// backend. A Session's lifetime equals its client connection; it is owned
// exclusively by one orchestrator instance and is never shared, so none of
// its methods take a lock (spec §5: "Session: not shared; no locking").
package session

import "fmt"

// Default shadow system-variable values a fresh connection reports,
// matching what a stock MySQL server reports for a new session under the
// utf8mb4 default charset.
var defaultSystemVars = map[string]string{
	"character_set_client":     "utf8mb4",
	"character_set_connection": "utf8mb4",
	"character_set_results":    "utf8mb4",
	"collation_connection":     "utf8mb4_general_ci",
	"tx_isolation":             "REPEATABLE-READ",
	"tx_read_only":             "OFF",
	"autocommit":               "ON",
}

// Session is per-connection proxy state.
type Session struct {
	ID       int64
	Username string

	currentDB  string
	hasDB      bool
	userVars   map[string]any
	systemVars map[string]string
}

// New creates a Session with the default shadow variable set.
func New(id int64, username string) *Session {
	vars := make(map[string]string, len(defaultSystemVars))
	for k, v := range defaultSystemVars {
		vars[k] = v
	}
	return &Session{
		ID:         id,
		Username:   username,
		userVars:   make(map[string]any),
		systemVars: vars,
	}
}

// UseDatabase implements USE <db>.
func (s *Session) UseDatabase(name string) {
	s.currentDB = name
	s.hasDB = true
}

// CurrentDatabase returns the selected database and whether one has been
// selected at all (the nullable field from spec §3).
func (s *Session) CurrentDatabase() (string, bool) {
	return s.currentDB, s.hasDB
}

// SetUserVar implements `SET @name = value`.
func (s *Session) SetUserVar(name string, value any) {
	s.userVars[name] = value
}

// UserVar reads a user-defined variable. The static-SELECT evaluator does
// not call it, so `SELECT @name` is not answered from these bindings.
func (s *Session) UserVar(name string) (any, bool) {
	v, ok := s.userVars[name]
	return v, ok
}

// SetSystemVar implements the shadow-variable side of `SET [SESSION|GLOBAL]
// name = value`, `SET NAMES`, `SET CHARACTER SET`, and `SET TRANSACTION`.
func (s *Session) SetSystemVar(name, value string) {
	s.systemVars[name] = value
}

// SystemVar reads a shadow system variable.
func (s *Session) SystemVar(name string) (string, bool) {
	v, ok := s.systemVars[name]
	return v, ok
}

// SetNames implements `SET NAMES <charset> [COLLATE <collation>]`.
func (s *Session) SetNames(charset, collation string) {
	s.systemVars["character_set_client"] = charset
	s.systemVars["character_set_connection"] = charset
	s.systemVars["character_set_results"] = charset
	if collation != "" {
		s.systemVars["collation_connection"] = collation
	}
}

// SetCharacterSet implements `SET CHARACTER SET <charset>`: client and
// results follow charset, connection follows the database's own charset
// (approximated here as charset too, since the proxy does not track
// per-database charset metadata).
func (s *Session) SetCharacterSet(charset string) {
	s.systemVars["character_set_client"] = charset
	s.systemVars["character_set_results"] = charset
	s.systemVars["character_set_connection"] = charset
}

// SetTransaction implements `SET TRANSACTION <characteristic...>`.
func (s *Session) SetTransaction(isolation string, readOnly bool) {
	if isolation != "" {
		s.systemVars["tx_isolation"] = isolation
	}
	s.systemVars["tx_read_only"] = "OFF"
	if readOnly {
		s.systemVars["tx_read_only"] = "ON"
	}
}

// String is for log correlation, not protocol use.
func (s *Session) String() string {
	db := "(none)"
	if s.hasDB {
		db = s.currentDB
	}
	return fmt.Sprintf("session#%d db=%s", s.ID, db)
}
