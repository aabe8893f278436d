// File: internal/signals/detectors.go
package signals

import (
	"fmt"
	"regexp"
	"strings"
)

// Signal names emitted by the extractor. The loop-breaker and plateau
// signals are injected by the pipeline itself, not by detectors.
const (
	SigLogError              = "log_error"
	SigMissingResource       = "missing_resource"
	SigProtocolDrift         = "protocol_drift"
	SigFeatureRequest        = "feature_request"
	SigImprovementSuggestion = "improvement_suggestion"
	SigPerformanceComplaint  = "performance_complaint"
	SigCapabilityGap         = "capability_gap"
	SigMemoryFileMissing     = "memory_file_missing"
	SigRecurringError        = "recurring_error"
	SigStagnation            = "evolution_stagnation_detected"
	SigPlateau               = "stable_success_plateau"
	SigForceInnovation       = "force_innovation_after_repair_loop"
	SigEmptyCycleLoop        = "empty_cycle_loop_detected"
)

// errSigMaxLen bounds a captured error signature so one noisy stack
// trace cannot bloat the event record.
const errSigMaxLen = 160

// toolUsageThreshold is the invocation count at which a tool is flagged.
const toolUsageThreshold = 5

// -- Regex Definitions --
var (
	errorMarkerRegex    = regexp.MustCompile(`(?m)\b(error|exception|traceback|fatal)\b|panic:`)
	errSignatureRegex   = regexp.MustCompile(`(?m)^.*?([a-z_]*(?:error|exception)[:\s].{0,200}|panic:.{0,200})$`)
	missingResourceRe   = regexp.MustCompile(`no such file|not found|enoent|missing dependency|module not found`)
	protocolDriftRe     = regexp.MustCompile(`protocol (?:mismatch|drift)|unexpected response (?:shape|format)|schema mismatch|version mismatch`)
	featureRequestRe    = regexp.MustCompile(`feature request|can you add|please add|would be nice if`)
	improvementRe       = regexp.MustCompile(`should improve|could be (?:better|faster|cleaner)|needs refactor`)
	performanceRe       = regexp.MustCompile(`too slow|very slow|sluggish|performance (?:issue|problem|complaint)`)
	capabilityGapRe     = regexp.MustCompile(`i can'?t |unable to |not supported|no way to |don'?t have the ability`)
	memoryMissingRe     = regexp.MustCompile(`memory file missing|\[memory file missing\]`)
	toolUsageRegex      = regexp.MustCompile(`tool[_ ]?(?:use|call)[:=]\s*"?([a-z0-9_.\-]+)"?`)
	errLineNormalizerRe = regexp.MustCompile(`\b(?:0x[0-9a-f]+|\d+)\b`)
	spaceCollapseRe     = regexp.MustCompile(`\s+`)
)

// benignTools are periodic housekeeping invocations that legitimately
// repeat; they are corrected out before thresholding.
var benignTools = map[string]bool{
	"health_check": true,
	"heartbeat":    true,
	"status":       true,
}

// cosmeticSignals carry no urgency; they are dropped whenever anything
// actionable is present.
var cosmeticSignals = map[string]bool{
	SigMemoryFileMissing: true,
}

// detector is one named heuristic over the lower-cased corpus. Detectors
// return zero or more signals; the pipeline order is fixed so output
// stays order-stable.
type detector struct {
	name   string
	detect func(corpus string, current *orderedSet)
}

// defensive detectors run first, opportunity detectors second. Opportunity
// gating reads the current set, which at that point only holds defensive
// results.
var detectors = []detector{
	{name: "log_error", detect: func(corpus string, out *orderedSet) {
		if errorMarkerRegex.MatchString(corpus) {
			out.add(SigLogError)
		}
	}},
	{name: "error_signature", detect: func(corpus string, out *orderedSet) {
		m := errSignatureRegex.FindStringSubmatch(corpus)
		if len(m) > 1 {
			out.add("errsig:" + truncate(strings.TrimSpace(m[1]), errSigMaxLen))
		}
	}},
	{name: "missing_resource", detect: func(corpus string, out *orderedSet) {
		if missingResourceRe.MatchString(corpus) {
			out.add(SigMissingResource)
		}
	}},
	{name: "protocol_drift", detect: func(corpus string, out *orderedSet) {
		if protocolDriftRe.MatchString(corpus) {
			out.add(SigProtocolDrift)
		}
	}},
	{name: "memory_file_missing", detect: func(corpus string, out *orderedSet) {
		if memoryMissingRe.MatchString(corpus) {
			out.add(SigMemoryFileMissing)
		}
	}},
	{name: "feature_request", detect: func(corpus string, out *orderedSet) {
		if featureRequestRe.MatchString(corpus) {
			out.add(SigFeatureRequest)
		}
	}},
	{name: "improvement_suggestion", detect: func(corpus string, out *orderedSet) {
		// Suggestions are noise while an active error exists.
		if !out.has(SigLogError) && improvementRe.MatchString(corpus) {
			out.add(SigImprovementSuggestion)
		}
	}},
	{name: "performance_complaint", detect: func(corpus string, out *orderedSet) {
		if performanceRe.MatchString(corpus) {
			out.add(SigPerformanceComplaint)
		}
	}},
	{name: "capability_gap", detect: func(corpus string, out *orderedSet) {
		// A missing resource explains the gap; don't double-report.
		if !out.has(SigMissingResource) && capabilityGapRe.MatchString(corpus) {
			out.add(SigCapabilityGap)
		}
	}},
}

// detectRecurringErrors finds identical normalized error snippets
// occurring at least three times and emits the top offender.
func detectRecurringErrors(corpus string, out *orderedSet) {
	counts := make(map[string]int)
	for _, line := range strings.Split(corpus, "\n") {
		if !errorMarkerRegex.MatchString(line) {
			continue
		}
		counts[normalizeErrorLine(line)]++
	}

	topSig, topCount := "", 0
	for sig, n := range counts {
		if n > topCount || (n == topCount && sig < topSig) {
			topSig, topCount = sig, n
		}
	}
	if topCount >= 3 {
		out.add(SigRecurringError)
		out.add(fmt.Sprintf("recurring_errsig(%dx):%s", topCount, truncate(topSig, errSigMaxLen)))
	}
}

// detectToolOveruse counts tool-usage markers and flags tools invoked at
// least five times, after dropping known-benign periodic invocations.
func detectToolOveruse(corpus string, out *orderedSet) {
	counts := make(map[string]int)
	var order []string
	for _, m := range toolUsageRegex.FindAllStringSubmatch(corpus, -1) {
		tool := m[1]
		if benignTools[tool] {
			continue
		}
		if counts[tool] == 0 {
			order = append(order, tool)
		}
		counts[tool]++
	}
	for _, tool := range order {
		if counts[tool] >= toolUsageThreshold {
			out.add("high_tool_usage:" + tool)
		}
	}
}

// normalizeErrorLine strips volatile tokens (addresses, counters) so that
// repeats of the same failure collapse onto one snippet.
func normalizeErrorLine(line string) string {
	s := errLineNormalizerRe.ReplaceAllString(strings.TrimSpace(line), "#")
	s = spaceCollapseRe.ReplaceAllString(s, " ")
	return truncate(s, 80)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// isRepairSignal identifies the signals stripped by the repair-loop and
// empty-cycle breakers.
func isRepairSignal(s string) bool {
	return s == SigLogError || s == SigRecurringError ||
		strings.HasPrefix(s, "errsig:") || strings.HasPrefix(s, "recurring_errsig")
}

// orderedSet is a deduplicated, insertion-ordered signal collection.
type orderedSet struct {
	items []string
	seen  map[string]bool
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (o *orderedSet) add(s string) {
	if o.seen[s] {
		return
	}
	o.seen[s] = true
	o.items = append(o.items, s)
}

func (o *orderedSet) has(s string) bool { return o.seen[s] }

func (o *orderedSet) len() int { return len(o.items) }

// filter keeps only items for which keep returns true.
func (o *orderedSet) filter(keep func(string) bool) {
	kept := o.items[:0]
	for _, s := range o.items {
		if keep(s) {
			kept = append(kept, s)
		} else {
			delete(o.seen, s)
		}
	}
	o.items = kept
}
