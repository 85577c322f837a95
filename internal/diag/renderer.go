package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Colors and box styles follow the teacher's internal/output/styles.go
// palette exactly — this is a sibling operator view of the same visual
// family, not a new design.
var (
	colorInfo  = lipgloss.Color("#00BFFF")
	colorSafe  = lipgloss.Color("#04B575")
	colorMuted = lipgloss.Color("#666666")

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorInfo).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorInfo)
	labelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(16)
	okStyle    = lipgloss.NewStyle().Foreground(colorSafe).Bold(true)
)

// Renderer is the output-format abstraction, same shape as the teacher's
// output.Renderer: one method per view, one implementation per format
// selectable via `-f`.
type Renderer interface {
	RenderSnapshot(s Snapshot)
}

// NewRenderer builds a Renderer for the named format, defaulting to text
// exactly as output.NewRenderer does.
func NewRenderer(format string, w io.Writer) Renderer {
	switch format {
	case "json":
		return &jsonRenderer{w: w}
	case "markdown":
		return &markdownRenderer{w: w}
	case "plain":
		return &plainRenderer{w: w}
	default:
		return &textRenderer{w: w}
	}
}

type textRenderer struct{ w io.Writer }

func (r *textRenderer) RenderSnapshot(s Snapshot) {
	header := titleStyle.Render("tabproxy — pool & session status")
	lines := []string{
		labelStyle.Render("Pool:") + fmt.Sprintf("%d/%d in use, %d waiting", s.Pool.InUse, s.Pool.Capacity, s.Pool.Waiting),
		labelStyle.Render("Sessions:") + fmt.Sprintf("%d active", s.SessionCount),
		labelStyle.Render("Rewrites:") + fmt.Sprintf("%d recent", len(s.RecentRewrites)),
	}
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, boxStyle.Render(header+"\n"+strings.Join(lines, "\n")))

	for _, entry := range s.RecentRewrites {
		status := okStyle.Render("ok")
		if !entry.Success {
			status = "rejected"
		}
		fmt.Fprintf(r.w, "  [%d] %s (%d rewrites)\n", entry.StatementID, status, len(entry.Rewrites))
	}
}

type plainRenderer struct{ w io.Writer }

func (r *plainRenderer) RenderSnapshot(s Snapshot) {
	fmt.Fprintf(r.w, "pool: %d/%d in_use waiting=%d\n", s.Pool.InUse, s.Pool.Capacity, s.Pool.Waiting)
	fmt.Fprintf(r.w, "sessions: %d\n", s.SessionCount)
	for _, entry := range s.RecentRewrites {
		fmt.Fprintf(r.w, "statement %d: success=%v rewrites=%d\n", entry.StatementID, entry.Success, len(entry.Rewrites))
	}
}

type markdownRenderer struct{ w io.Writer }

func (r *markdownRenderer) RenderSnapshot(s Snapshot) {
	fmt.Fprintf(r.w, "# tabproxy status\n\n")
	fmt.Fprintf(r.w, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(r.w, "| Pool in use | %d/%d |\n", s.Pool.InUse, s.Pool.Capacity)
	fmt.Fprintf(r.w, "| Pool waiting | %d |\n", s.Pool.Waiting)
	fmt.Fprintf(r.w, "| Sessions | %d |\n", s.SessionCount)
	fmt.Fprintf(r.w, "\n## Recent statements\n\n")
	for _, entry := range s.RecentRewrites {
		fmt.Fprintf(r.w, "- `%d`: success=%v, %d rewrite(s)\n", entry.StatementID, entry.Success, len(entry.Rewrites))
	}
}

type jsonRenderer struct{ w io.Writer }

type jsonSnapshot struct {
	Pool     PoolStats            `json:"pool"`
	Sessions int                  `json:"sessions"`
	Recent   []jsonRewriteSummary `json:"recent_statements"`
}

type jsonRewriteSummary struct {
	StatementID int64 `json:"statement_id"`
	Success     bool  `json:"success"`
	RewriteCount int  `json:"rewrite_count"`
}

func (r *jsonRenderer) RenderSnapshot(s Snapshot) {
	out := jsonSnapshot{Pool: s.Pool, Sessions: s.SessionCount}
	for _, entry := range s.RecentRewrites {
		out.Recent = append(out.Recent, jsonRewriteSummary{
			StatementID:  entry.StatementID,
			Success:      entry.Success,
			RewriteCount: len(entry.Rewrites),
		})
	}
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
