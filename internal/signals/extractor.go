// File: internal/signals/extractor.go

// Package signals extracts deduplicated, order-stable symptom tags from
// an unstructured text corpus and filters them against recent evolution
// history. The extractor is deterministic: identical corpus and history
// always yield an identical signal list, and the list is never empty.
package signals

import (
	"strings"

	"go.uber.org/zap"
)

// Extractor runs the detector battery and the history-based filters.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor returns a ready extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger.Named("signals")}
}

// Extract produces the signal list for one cycle.
//
// Pipeline: detector battery over the lower-cased corpus, recurring-error
// detection, tool-overuse detection, cosmetic pruning, history
// suppression, the repair-loop breaker, the empty-cycle breaker, and a
// final plateau fallback. Each stage may only remove signals or inject
// the fixed loop-breaker tags, so the output order follows detector
// order.
func (x *Extractor) Extract(corpus string, history Analysis) []string {
	lowered := strings.ToLower(corpus)
	set := newOrderedSet()

	for _, d := range detectors {
		d.detect(lowered, set)
	}
	detectRecurringErrors(lowered, set)
	detectToolOveruse(lowered, set)

	x.prioritize(set)
	x.suppressOverProcessed(set, history)
	x.breakRepairLoop(set, history)
	x.breakEmptyCycleLoop(set, history)

	if set.len() == 0 {
		set.add(SigPlateau)
	}

	x.logger.Debug("Signal extraction complete.",
		zap.Strings("signals", set.items),
		zap.Int("suppressed_keys", len(history.SuppressedSignalKeys)),
	)
	return set.items
}

// prioritize drops purely cosmetic signals once anything actionable is
// present.
func (x *Extractor) prioritize(set *orderedSet) {
	actionable := false
	for _, s := range set.items {
		if !cosmeticSignals[s] {
			actionable = true
			break
		}
	}
	if actionable {
		set.filter(func(s string) bool { return !cosmeticSignals[s] })
	}
}

// suppressOverProcessed removes signals whose normalized key dominated
// recent history. If suppression empties the list entirely, the system is
// circling a plateau; say so instead of going quiet.
func (x *Extractor) suppressOverProcessed(set *orderedSet, history Analysis) {
	if set.len() == 0 || len(history.SuppressedSignalKeys) == 0 {
		return
	}
	hadSignals := set.len() > 0
	set.filter(func(s string) bool {
		_, suppressed := history.SuppressedSignalKeys[NormalizeKey(s)]
		return !suppressed
	})
	if hadSignals && set.len() == 0 {
		set.add(SigStagnation)
		set.add(SigPlateau)
	}
}

// breakRepairLoop forces a behavioral change after three consecutive
// repair cycles: repair-oriented signals are stripped so the next gene
// selection cannot pick repair again.
func (x *Extractor) breakRepairLoop(set *orderedSet, history Analysis) {
	if history.ConsecutiveRepairCount < repairLoopThreshold {
		return
	}
	x.logger.Info("Repair loop detected; forcing innovation.",
		zap.Int("consecutive_repairs", history.ConsecutiveRepairCount))

	set.filter(func(s string) bool { return !isRepairSignal(s) })
	before := set.len()
	set.add(SigForceInnovation)
	if before == 0 {
		set.add(SigPlateau)
	}
}

// breakEmptyCycleLoop reacts to a history dominated by zero-change
// cycles: repair signals are dropped and the stagnation markers injected.
func (x *Extractor) breakEmptyCycleLoop(set *orderedSet, history Analysis) {
	if history.EmptyCycleCount < emptyCycleThreshold {
		return
	}
	x.logger.Info("Empty-cycle loop detected.",
		zap.Int("empty_cycles", history.EmptyCycleCount))

	set.filter(func(s string) bool { return !isRepairSignal(s) })
	set.add(SigEmptyCycleLoop)
	set.add(SigPlateau)
}
