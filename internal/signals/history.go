// File: internal/signals/history.go
package signals

import (
	"strings"

	"github.com/xkilldash9x/crucible-cli/internal/assets"
)

const (
	// historyWindow is how many trailing events the analyzer inspects.
	historyWindow = 10
	// frequencyWindow is the sub-window used for frequency tables and
	// suppression counting.
	frequencyWindow = 8
	// suppressThreshold marks a signal key as over-processed when it
	// appears in at least this many events of the frequency window.
	suppressThreshold = 3
	// repairLoopThreshold triggers the repair-loop breaker.
	repairLoopThreshold = 3
	// emptyCycleThreshold triggers the empty-cycle breaker.
	emptyCycleThreshold = 4
)

// Analysis summarizes recent evolution history. It is a pure function of
// the events passed in; nothing here touches the store.
type Analysis struct {
	// SuppressedSignalKeys holds normalized keys seen in >= suppressThreshold
	// of the last frequencyWindow events, mapped to their event counts.
	SuppressedSignalKeys map[string]int `json:"suppressed_signal_keys"`
	// RecentIntents lists the intents of the analyzed events, oldest first.
	RecentIntents []assets.Category `json:"recent_intents,omitempty"`
	// ConsecutiveRepairCount is the run of repair intents ending at the most
	// recent event.
	ConsecutiveRepairCount int `json:"consecutive_repair_count"`
	// EmptyCycleCount is how many of the last frequencyWindow events recorded
	// zero file and line change.
	EmptyCycleCount int            `json:"empty_cycle_count"`
	SignalFrequency map[string]int `json:"signal_frequency"`
	GeneFrequency   map[string]int `json:"gene_frequency"`
}

// NormalizeKey collapses per-occurrence signal variants to a stable key
// for suppression comparison. The emitted signal text is never rewritten.
func NormalizeKey(signal string) string {
	if strings.HasPrefix(signal, "errsig:") {
		return "errsig"
	}
	if strings.HasPrefix(signal, "recurring_errsig") {
		return "recurring_errsig"
	}
	return signal
}

// isEmptyCycle reports whether an event recorded no change at all.
func isEmptyCycle(e assets.Event) bool {
	if e.BlastRadius.Files == 0 && e.BlastRadius.Lines == 0 {
		return true
	}
	if v, ok := e.Meta["empty_cycle"]; ok {
		if b, ok := v.(bool); ok && b {
			return true
		}
	}
	return false
}

// Analyze inspects the last <=10 events (chronological order, oldest
// first) and derives the suppression and loop-detection inputs for the
// extractor.
func Analyze(events []assets.Event) Analysis {
	events = assets.TailEvents(events, historyWindow)

	a := Analysis{
		SuppressedSignalKeys: make(map[string]int),
		SignalFrequency:      make(map[string]int),
		GeneFrequency:        make(map[string]int),
	}

	for _, e := range events {
		a.RecentIntents = append(a.RecentIntents, e.Intent)
	}

	// Consecutive repairs: scan backward from the most recent event and
	// stop at the first non-repair intent.
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Intent != assets.CategoryRepair {
			break
		}
		a.ConsecutiveRepairCount++
	}

	// Frequency tables and empty-cycle counting run over the most recent 8.
	window := assets.TailEvents(events, frequencyWindow)
	for _, e := range window {
		seen := make(map[string]bool)
		for _, s := range e.Signals {
			key := NormalizeKey(s)
			if seen[key] {
				continue // count per-event presence, not occurrences
			}
			seen[key] = true
			a.SignalFrequency[key]++
		}
		for _, g := range e.GenesUsed {
			a.GeneFrequency[g]++
		}
		if isEmptyCycle(e) {
			a.EmptyCycleCount++
		}
	}

	for key, count := range a.SignalFrequency {
		if count >= suppressThreshold {
			a.SuppressedSignalKeys[key] = count
		}
	}

	return a
}
