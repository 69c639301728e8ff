package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/petrijr/flowgate/pkg/api"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(12)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#D29922"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
	headStyle  = cellStyle.Bold(true)
	cardStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

const timeLayout = "2006-01-02 15:04:05"

// renderer writes command results either as styled text or as JSON.
type renderer struct {
	w    io.Writer
	json bool
}

func (r renderer) encode(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r renderer) line(format string, args ...any) {
	fmt.Fprintf(r.w, format+"\n", args...)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			return cellStyle
		})
}

func field(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func progressBar(pct int) string {
	const width = 20
	filled := pct * width / 100
	return okStyle.Render(strings.Repeat("█", filled)) +
		strings.Repeat("░", width-filled) + " " + strconv.Itoa(pct) + "%"
}

func statusText(s api.Status) string {
	switch s {
	case api.StatusCompleted:
		return okStyle.Render(string(s))
	case api.StatusFailed, api.StatusCancelled:
		return errStyle.Render(string(s))
	}
	return string(s)
}

func opStatusText(s api.OperationStatus) string {
	switch s {
	case api.OperationCompleted:
		return okStyle.Render(string(s))
	case api.OperationPending, api.OperationExecuting:
		return warnStyle.Render(string(s))
	}
	return errStyle.Render(string(s))
}

func (r renderer) workflow(wf *api.WorkflowState) error {
	if r.json {
		return r.encode(wf)
	}

	lines := []string{
		titleStyle.Render(wf.WorkflowID),
		field("stage", wf.Stage),
		field("status", statusText(wf.Status)),
		field("progress", progressBar(wf.Progress)),
		field("version", strconv.FormatInt(wf.Metadata.Version, 10)),
		field("checksum", wf.Metadata.Checksum),
		field("created", fmt.Sprintf("%s by %s", wf.Metadata.CreatedAt.Format(timeLayout), wf.Metadata.CreatedBy)),
		field("modified", fmt.Sprintf("%s by %s", wf.Metadata.LastModifiedAt.Format(timeLayout), wf.Metadata.LastModifiedBy)),
	}
	if len(wf.Data) > 0 {
		data, err := json.Marshal(wf.Data)
		if err != nil {
			return err
		}
		lines = append(lines, field("data", string(data)))
	}
	fmt.Fprintln(r.w, cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))

	if len(wf.Transitions) > 0 {
		t := newTable("#", "FROM", "TO", "BY", "AT")
		for i, tr := range wf.Transitions {
			t.Row(strconv.Itoa(i+1), tr.FromStage, tr.ToStage, tr.TriggeredBy, tr.TriggeredAt.Format(timeLayout))
		}
		fmt.Fprintln(r.w, t.Render())
	}
	if len(wf.Locks) > 0 {
		fmt.Fprintln(r.w, locksTable(wf.Locks).Render())
	}
	return nil
}

func (r renderer) workflows(wfs []*api.WorkflowState) error {
	if r.json {
		return r.encode(wfs)
	}
	if len(wfs) == 0 {
		r.line("no workflows")
		return nil
	}
	t := newTable("WORKFLOW", "STAGE", "STATUS", "PROGRESS", "VERSION", "MODIFIED BY")
	for _, wf := range wfs {
		t.Row(wf.WorkflowID, wf.Stage, string(wf.Status), strconv.Itoa(wf.Progress)+"%",
			strconv.FormatInt(wf.Metadata.Version, 10), wf.Metadata.LastModifiedBy)
	}
	fmt.Fprintln(r.w, t.Render())
	return nil
}

func (r renderer) operations(ops []*api.AtomicOperation) error {
	if r.json {
		return r.encode(ops)
	}
	if len(ops) == 0 {
		r.line("no operations")
		return nil
	}
	t := newTable("OPERATION", "WORKFLOW", "TYPE", "TARGET", "STATUS", "RETRIES", "LAST ERROR")
	for _, op := range ops {
		target := op.TargetStage
		if target == "" {
			target = string(op.TargetStatus)
		}
		t.Row(op.ID, op.WorkflowID, string(op.OperationType), target, string(op.Status),
			fmt.Sprintf("%d/%d", op.RetryCount, op.MaxRetries), op.LastError)
	}
	fmt.Fprintln(r.w, t.Render())
	return nil
}

func (r renderer) operation(op *api.AtomicOperation) error {
	if r.json {
		return r.encode(op)
	}
	lines := []string{
		titleStyle.Render(op.ID),
		field("workflow", op.WorkflowID),
		field("type", string(op.OperationType)),
		field("status", opStatusText(op.Status)),
		field("retries", fmt.Sprintf("%d/%d", op.RetryCount, op.MaxRetries)),
	}
	if op.TargetStage != "" {
		lines = append(lines, field("target", op.TargetStage))
	}
	if op.Status == api.OperationPending {
		lines = append(lines, field("next", op.NextAttemptAt.Format(timeLayout)))
	}
	if op.LastError != "" {
		lines = append(lines, field("error", op.LastError))
	}
	fmt.Fprintln(r.w, cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	return nil
}

func locksTable(locks []api.Lock) *table.Table {
	t := newTable("LOCK", "WORKFLOW", "STAGE", "USER", "TYPE", "EXPIRES")
	for _, l := range locks {
		t.Row(l.ID, l.WorkflowID, l.Stage, l.UserID, string(l.LockType), l.ExpiresAt.Format(timeLayout))
	}
	return t
}

func (r renderer) locks(locks []api.Lock) error {
	if r.json {
		return r.encode(locks)
	}
	if len(locks) == 0 {
		r.line("no locks held")
		return nil
	}
	fmt.Fprintln(r.w, locksTable(locks).Render())
	return nil
}

func (r renderer) conflict(c *api.LockConflict) error {
	if r.json {
		return r.encode(map[string]any{"success": false, "conflict": c})
	}
	if c.Reason == api.ConflictVersion {
		r.line("%s %s: expected version %d, have %d", errStyle.Render("conflict"),
			c.WorkflowID, c.ExpectedVersion, c.ActualVersion)
		return nil
	}
	r.line("%s %s/%s is locked by %s until %s (%s left)", errStyle.Render("conflict"),
		c.WorkflowID, c.Stage, c.Holder.UserID, c.Holder.ExpiresAt.Format(timeLayout),
		time.Until(c.Holder.ExpiresAt).Round(time.Second))
	return nil
}
