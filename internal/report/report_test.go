package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/tgmigrate/internal/model"
)

func TestAggregator_Summary(t *testing.T) {
	a := NewAggregator()
	now := time.Now()
	a.Record("forward", 30, now)
	a.Record("forward", 90, now.Add(time.Minute))
	a.Record("invite", 10, now.Add(2*time.Minute))

	s := a.Summary()
	assert.Equal(t, 3, s.TotalEvents)
	assert.Equal(t, 130, s.TotalWaitTime)
	assert.Equal(t, 90, s.LongestWait)
}

func TestGenerateReport_IncludesLatestErrorPerFailedConversation(t *testing.T) {
	started := time.Now().Add(-time.Hour)
	updated := time.Now()
	p := model.GlobalProgress{
		StartedAt: started,
		UpdatedAt: updated,
		Stats:     model.Stats{TotalDialogs: 2, FailedDialogs: 1},
		Dialogs: map[string]model.ConversationProgress{
			"1": {
				SourceID:    "1",
				DisplayName: "Alice",
				Status:      model.StatusFailed,
				Errors: []model.ErrorRecord{
					{Timestamp: started, Kind: "MIGRATION_FORWARD_FAILED", Message: "first"},
					{Timestamp: updated, Kind: "MIGRATION_ABORTED", Message: "second"},
				},
			},
			"2": {SourceID: "2", DisplayName: "Bob", Status: model.StatusCompleted},
		},
	}

	a := NewAggregator()
	a.Record("forward", 60, started)

	report := a.GenerateReport(p)

	require.Len(t, report.ConversationFailures, 1)
	assert.Equal(t, "second", report.ConversationFailures[0].Message, "the most recent error wins")
	assert.Equal(t, 1, report.FloodWaitSummary.TotalEvents)
	assert.InDelta(t, time.Hour.Seconds(), report.ElapsedSeconds, 1)
}
