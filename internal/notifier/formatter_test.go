package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"FamilyPoints/internal/model"
)

var names = map[model.AccountID]string{
	"1":    "Papa",
	"2":    "Tom & Jerry",
	"goal": "Goal Pool",
}

func nameOf(id model.AccountID) string { return names[id] }

func TestFormatLeaderboard(t *testing.T) {
	out := FormatLeaderboard([]model.Standing{
		{ID: "2", Name: "Tom & Jerry", Balance: 12},
		{ID: "1", Name: "Papa", Balance: 3},
		{ID: "goal", Name: "Goal Pool", Balance: 40, Pool: true},
	})
	assert.Contains(t, out, "• Tom &amp; Jerry: 12 points\n• Papa: 3 points")
	assert.Contains(t, out, "🎯 Goal Pool: 40 points")
	assert.Contains(t, FormatLeaderboard(nil), "No accounts yet.")
}

func TestFormatHistory(t *testing.T) {
	at := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	out := FormatHistory([]model.HistoryEntry{
		{Timestamp: at, PerformerID: "1", Operation: model.OpCredit, Amount: 5, Reason: "dishes <3", TargetID: "2"},
		{Timestamp: at, PerformerID: "2", Operation: model.OpTransfer, Amount: 2, Reason: "saving", SourceID: "2", TargetID: "goal"},
	}, nameOf)

	assert.Contains(t, out, "<b>2026-10-18 09:30</b>")
	assert.Contains(t, out, "Action: Added <b>5</b> to Tom &amp; Jerry")
	assert.Contains(t, out, "Reason: <i>dishes &lt;3</i>")
	assert.Contains(t, out, "Action: Transferred <b>2</b> from Tom &amp; Jerry to Goal Pool")
	assert.Equal(t, "No activity recorded yet.", FormatHistory(nil, nameOf))
}

func TestFormatWeeklySummary(t *testing.T) {
	to := time.Date(2026, 10, 18, 19, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -7)
	standings := []model.Standing{
		{ID: "1", Name: "Papa", Balance: 10},
		{ID: "goal", Name: "Goal Pool", Balance: 4, Pool: true},
	}

	out := FormatWeeklySummary(standings, nil, nameOf, from, to)
	assert.Contains(t, out, "2026-10-11 – 2026-10-18")
	assert.Contains(t, out, "1. Papa: 10 points")
	assert.Contains(t, out, "🎯 Goal Pool: 4 points")
	assert.Contains(t, out, "No activity this week.")

	out = FormatWeeklySummary(standings, []model.HistoryEntry{
		{Timestamp: to, PerformerID: "1", Operation: model.OpDebit, Amount: 1, Reason: "late", TargetID: "2"},
	}, nameOf, from, to)
	assert.Contains(t, out, "Action: Subtracted <b>1</b> from Tom &amp; Jerry")
}
