package progress

import (
	"encoding/json"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/tgmigrate/internal/migraterr"
	"github.com/hrygo/tgmigrate/internal/model"
)

type wireExport struct {
	ExportID      string       `json:"exportId"`
	ExportVersion string       `json:"exportVersion"`
	ExportedAt    time.Time    `json:"exportedAt"`
	Progress      wireProgress `json:"progress"`
}

// Export wraps progress in the {exportId, exportVersion, exportedAt,
// progress} envelope (spec §4.5). exportId is a short opaque
// correlation id an operator can quote when reporting an import
// problem; it carries no semantic meaning and Import ignores it.
func Export(p model.GlobalProgress) (string, error) {
	wrapped := wireExport{
		ExportID:      shortuuid.New(),
		ExportVersion: model.CurrentSchemaVersion,
		ExportedAt:    time.Now(),
		Progress:      toWire(p),
	}
	data, err := json.MarshalIndent(wrapped, "", "  ")
	if err != nil {
		return "", migraterr.Wrap(migraterr.KindWriteFailed, "encoding export", err)
	}
	return string(data), nil
}

// Import accepts either the wrapped export shape or a bare progress
// document, for backward compatibility (spec §4.5, §6).
func Import(s string) (model.GlobalProgress, error) {
	raw := []byte(s)

	var probe struct {
		ExportVersion string          `json:"exportVersion"`
		Progress      json.RawMessage `json:"progress"`
		Version       string          `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return model.GlobalProgress{}, migraterr.Wrap(migraterr.KindInvalidFormat, "parsing import payload", err)
	}

	var w wireProgress
	switch {
	case len(probe.Progress) > 0:
		if err := json.Unmarshal(probe.Progress, &w); err != nil {
			return model.GlobalProgress{}, migraterr.Wrap(migraterr.KindInvalidFormat, "parsing wrapped progress", err)
		}
	case probe.Version != "":
		if err := json.Unmarshal(raw, &w); err != nil {
			return model.GlobalProgress{}, migraterr.Wrap(migraterr.KindInvalidFormat, "parsing bare progress", err)
		}
	default:
		return model.GlobalProgress{}, migraterr.New(migraterr.KindInvalidFormat, "neither wrapped nor bare progress shape recognized")
	}

	if w.Version != model.CurrentSchemaVersion {
		return model.GlobalProgress{}, migraterr.New(migraterr.KindInvalidFormat, "unknown schema version "+w.Version)
	}

	p := fromWire(w)
	if p.Dialogs == nil {
		p.Dialogs = make(map[string]model.ConversationProgress)
	}
	return p, nil
}

// MergeStrategy selects how Merge reconciles two progress values that
// describe overlapping conversations (spec §4.5).
type MergeStrategy string

const (
	OverwriteAll  MergeStrategy = "overwrite_all"
	SkipCompleted MergeStrategy = "skip_completed"
	MergeProgress MergeStrategy = "merge_progress"
)

// progressRank orders statuses by effective migration progress for
// MergeProgress: Completed > (PartiallyMigrated|InProgress) > (Pending|Failed|Skipped).
func progressRank(s model.Status) int {
	switch s {
	case model.StatusCompleted:
		return 2
	case model.StatusPartiallyMigrated, model.StatusInProgress:
		return 1
	default:
		return 0
	}
}

// Merge combines existing and imported progress under strategy,
// then recomputes stats from the merged map (floodwait totals are
// not merged, per spec §4.5).
func Merge(existing, imported model.GlobalProgress, strategy MergeStrategy) model.GlobalProgress {
	var mergedDialogs map[string]model.ConversationProgress

	switch strategy {
	case OverwriteAll:
		mergedDialogs = cloneDialogs(imported)

	case SkipCompleted:
		mergedDialogs = make(map[string]model.ConversationProgress)
		ids := unionIDs(existing.Dialogs, imported.Dialogs)
		for _, id := range ids {
			e, eok := existing.Dialogs[id]
			i, iok := imported.Dialogs[id]
			switch {
			case eok && e.Status == model.StatusCompleted:
				mergedDialogs[id] = e
			case iok:
				mergedDialogs[id] = i
			case eok:
				mergedDialogs[id] = e
			}
		}

	case MergeProgress:
		mergedDialogs = make(map[string]model.ConversationProgress)
		ids := unionIDs(existing.Dialogs, imported.Dialogs)
		for _, id := range ids {
			e, eok := existing.Dialogs[id]
			i, iok := imported.Dialogs[id]
			switch {
			case eok && iok:
				mergedDialogs[id] = betterOf(e, i)
			case eok:
				mergedDialogs[id] = e
			case iok:
				mergedDialogs[id] = i
			}
		}

	default:
		mergedDialogs = cloneDialogs(imported)
	}

	next := existing
	next.Dialogs = mergedDialogs
	next.Stats = recomputeStats(mergedDialogs, existing.Stats)
	return touch(next)
}

func betterOf(a, b model.ConversationProgress) model.ConversationProgress {
	ra, rb := progressRank(a.Status), progressRank(b.Status)
	switch {
	case ra != rb:
		if ra > rb {
			return a
		}
		return b
	case a.MigratedCount != b.MigratedCount:
		if a.MigratedCount > b.MigratedCount {
			return a
		}
		return b
	default:
		return a
	}
}

func unionIDs(a, b map[string]model.ConversationProgress) []string {
	seen := make(map[string]bool, len(a)+len(b))
	ids := make([]string, 0, len(a)+len(b))
	for id := range a {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range b {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// recomputeStats rebuilds the dialog/message counters from scratch;
// floodwait counters are carried over unchanged (spec §4.5).
func recomputeStats(dialogs map[string]model.ConversationProgress, prev model.Stats) model.Stats {
	s := model.Stats{
		FloodWaitCount:        prev.FloodWaitCount,
		TotalFloodWaitSeconds: prev.TotalFloodWaitSeconds,
	}
	for _, d := range dialogs {
		s.TotalDialogs++
		s.TotalMessages += d.TotalCount
		s.MigratedMessages += d.MigratedCount
		switch d.Status {
		case model.StatusCompleted:
			s.CompletedDialogs++
		case model.StatusFailed:
			s.FailedDialogs++
		case model.StatusSkipped:
			s.SkippedDialogs++
		}
		for _, e := range d.Errors {
			if e.MessageID != nil {
				s.FailedMessages++
			}
		}
	}
	return s
}
