package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"FamilyPoints/internal/model"
)

// NameFunc resolves an account id to its display name.
type NameFunc func(model.AccountID) string

const timestampLayout = "2006-01-02 15:04"

// FormatLeaderboard renders standings, highest balance first.
func FormatLeaderboard(standings []model.Standing) string {
	var b strings.Builder
	b.WriteString("🏆 <b>Family Points Leaderboard</b> 🏆\n\n")
	if len(standings) == 0 {
		b.WriteString("No accounts yet.")
		return b.String()
	}
	for _, s := range standings {
		if s.Pool {
			b.WriteString(fmt.Sprintf("🎯 %s: %d points\n", html.EscapeString(s.Name), s.Balance))
			continue
		}
		b.WriteString(fmt.Sprintf("• %s: %d points\n", html.EscapeString(s.Name), s.Balance))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatHistory renders entries oldest first.
func FormatHistory(entries []model.HistoryEntry, name NameFunc) string {
	if len(entries) == 0 {
		return "No activity recorded yet."
	}
	var b strings.Builder
	b.WriteString("📜 <b>Recent Point Activity</b> 📜\n\n")
	writeEntries(&b, entries, name)
	return strings.TrimRight(b.String(), "\n")
}

// FormatWeeklySummary renders the broadcast digest for the period ending at to.
func FormatWeeklySummary(standings []model.Standing, entries []model.HistoryEntry, name NameFunc, from, to time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📅 <b>Weekly Points Summary</b> | %s – %s\n\n",
		from.Format("2006-01-02"), to.Format("2006-01-02")))

	b.WriteString("🏆 <b>Standings</b>\n")
	for i, s := range standings {
		prefix := fmt.Sprintf("%d.", i+1)
		if s.Pool {
			prefix = "🎯"
		}
		b.WriteString(fmt.Sprintf("%s %s: %d points\n", prefix, html.EscapeString(s.Name), s.Balance))
	}

	b.WriteString("\n📜 <b>This week</b>\n")
	if len(entries) == 0 {
		b.WriteString("No activity this week.")
		return b.String()
	}
	writeEntries(&b, entries, name)
	return strings.TrimRight(b.String(), "\n")
}

func writeEntries(b *strings.Builder, entries []model.HistoryEntry, name NameFunc) {
	esc := func(id model.AccountID) string { return html.EscapeString(name(id)) }
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("<b>%s</b>\n", e.Timestamp.Format(timestampLayout)))
		b.WriteString(fmt.Sprintf("Performer: %s\n", esc(e.PerformerID)))
		switch e.Operation {
		case model.OpCredit:
			b.WriteString(fmt.Sprintf("Action: Added <b>%d</b> to %s\n", e.Amount, esc(e.TargetID)))
		case model.OpDebit:
			b.WriteString(fmt.Sprintf("Action: Subtracted <b>%d</b> from %s\n", e.Amount, esc(e.TargetID)))
		case model.OpTransfer:
			b.WriteString(fmt.Sprintf("Action: Transferred <b>%d</b> from %s to %s\n", e.Amount, esc(e.SourceID), esc(e.TargetID)))
		}
		b.WriteString(fmt.Sprintf("Reason: <i>%s</i>\n\n", html.EscapeString(e.Reason)))
	}
}
