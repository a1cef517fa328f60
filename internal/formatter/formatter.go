// package formatter renders responses and client state as text, JSON or CSV
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/repertoire/internal/cache"
	"github.com/desertthunder/repertoire/internal/drawers"
	"github.com/desertthunder/repertoire/internal/models"
	"github.com/desertthunder/repertoire/internal/repositories"
	"github.com/desertthunder/repertoire/internal/services"
	"github.com/desertthunder/repertoire/internal/session"
	"github.com/desertthunder/repertoire/internal/shared"
)

// Format selects how values are written.
type Format string

const (
	Text Format = "text"
	JSON Format = "json"
	CSV  Format = "csv"
)

// ParseFormat validates a --format value. Empty means [Text].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return Text, nil
	case Text, JSON, CSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: format %q", shared.ErrInvalidFlag, s)
	}
}

var (
	header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Padding(0, 1)
	cell   = lipgloss.NewStyle().Padding(0, 1)
	muted  = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(muted).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
}

// IndentJSON re-indents a raw JSON document. Bodies that are not JSON are returned unchanged.
func IndentJSON(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return raw
	}
	return buf.Bytes()
}

// WriteResponse writes an API response. Text output prefixes the status line.
func WriteResponse(w io.Writer, resp *services.APIResponse, format Format) error {
	if resp == nil {
		return nil
	}
	body := resp.Body
	if resp.IsJSON {
		body = IndentJSON(body)
	}

	if format == JSON {
		if !resp.IsJSON {
			data, err := shared.MarshalJSON(map[string]any{"status": resp.StatusCode, "body": string(resp.Body)}, true)
			if err != nil {
				return err
			}
			body = data
		}
		_, err := fmt.Fprintf(w, "%s\n", body)
		return err
	}

	if _, err := fmt.Fprintf(w, "%s %d\n", muted.Render("status"), resp.StatusCode); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := fmt.Fprintf(w, "%s\n", body)
	return err
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	data, err := shared.MarshalJSON(v, true)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// DrawerRow is the serialized form of one drawer.
type DrawerRow struct {
	Kind     models.EntityKind `json:"kind"`
	EntityID string            `json:"entity_id,omitempty"`
	Open     bool              `json:"open"`
}

// DrawerRows lists the drawers of s in kind order.
func DrawerRows(s drawers.State) []DrawerRow {
	rows := make([]DrawerRow, 0, len(models.Kinds))
	for _, kind := range models.Kinds {
		d := s.Get(kind)
		rows = append(rows, DrawerRow{Kind: kind, EntityID: d.EntityID, Open: d.Open})
	}
	return rows
}

// RenderDrawers renders the drawer state as a table.
func RenderDrawers(s drawers.State) string {
	t := newTable("Drawer", "Entity", "Open")
	for _, r := range DrawerRows(s) {
		id := r.EntityID
		if id == "" {
			id = "-"
		}
		t.Row(string(r.Kind), id, strconv.FormatBool(r.Open))
	}
	return t.String()
}

// EntryRow is the serialized form of a cache entry, without its data.
type EntryRow struct {
	Key           string    `json:"key"`
	Tags          []string  `json:"tags"`
	FetchedAt     time.Time `json:"fetched_at"`
	Stale         bool      `json:"stale"`
	Invalidations int       `json:"invalidations"`
}

// EntryRows converts cache entries for output.
func EntryRows(entries []cache.Entry) []EntryRow {
	rows := make([]EntryRow, 0, len(entries))
	for _, e := range entries {
		tags := append([]string(nil), e.Tags...)
		sort.Strings(tags)
		rows = append(rows, EntryRow{
			Key:           e.Key,
			Tags:          tags,
			FetchedAt:     e.FetchedAt,
			Stale:         e.Stale,
			Invalidations: e.Invalidations,
		})
	}
	return rows
}

// RenderCache renders cache statistics followed by one row per entry.
func RenderCache(stats cache.Stats, entries []cache.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "entries=%d stale=%d hits=%d misses=%d invalidations=%d resets=%d\n",
		stats.Entries, stats.Stale, stats.Hits, stats.Misses, stats.Invalidations, stats.Resets)
	if len(entries) == 0 {
		return b.String()
	}

	t := newTable("Key", "Tags", "Fetched", "Stale", "Invalidated")
	for _, r := range EntryRows(entries) {
		t.Row(r.Key, strings.Join(r.Tags, ","), r.FetchedAt.Format(time.TimeOnly), strconv.FormatBool(r.Stale), strconv.Itoa(r.Invalidations))
	}
	b.WriteString(t.String())
	b.WriteString("\n")
	return b.String()
}

// ExportEntriesCSV converts cache entries to CSV with columns: Key, Tags, FetchedAt, Stale, Invalidations
func ExportEntriesCSV(entries []cache.Entry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Key", "Tags", "FetchedAt", "Stale", "Invalidations"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range EntryRows(entries) {
		record := []string{
			r.Key,
			strings.Join(r.Tags, ";"),
			r.FetchedAt.Format(time.RFC3339),
			strconv.FormatBool(r.Stale),
			strconv.Itoa(r.Invalidations),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// SessionView is the serialized form of the session and its audit trail. The token is never included.
type SessionView struct {
	SignedIn           bool           `json:"signed_in"`
	UserID             string         `json:"user_id,omitempty"`
	SignInHistoryIndex int            `json:"sign_in_history_index"`
	JustSignedIn       bool           `json:"just_signed_in"`
	Events             []SessionEvent `json:"events,omitempty"`
}

// SessionEvent is one audit trail entry.
type SessionEvent struct {
	Kind      string    `json:"kind"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSessionView builds a [SessionView].
func NewSessionView(s session.Session, events []repositories.SessionEvent) SessionView {
	v := SessionView{
		SignedIn:           s.SignedIn(),
		UserID:             s.UserID(),
		SignInHistoryIndex: s.SignInHistoryIndex,
		JustSignedIn:       s.JustSignedIn,
	}
	for _, e := range events {
		v.Events = append(v.Events, SessionEvent{Kind: string(e.Kind), UserID: e.UserID, CreatedAt: e.CreatedAt})
	}
	return v
}

// RenderSession renders the session summary and its recent events.
func RenderSession(v SessionView) string {
	var b strings.Builder
	status := "signed out"
	if v.SignedIn {
		status = "signed in"
		if v.UserID != "" {
			status += " as " + v.UserID
		}
	}
	fmt.Fprintf(&b, "%s\n", status)
	fmt.Fprintf(&b, "%s %d  %s %t\n", muted.Render("history floor"), v.SignInHistoryIndex, muted.Render("forward blocked"), v.JustSignedIn)

	if len(v.Events) == 0 {
		return b.String()
	}
	t := newTable("When", "Event", "User")
	for _, e := range v.Events {
		user := e.UserID
		if user == "" {
			user = "-"
		}
		t.Row(e.CreatedAt.Format(time.DateTime), e.Kind, user)
	}
	b.WriteString(t.String())
	b.WriteString("\n")
	return b.String()
}
