package roster

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Tuning holds every scheduler threshold in one place. Values are plain
// numbers with the unit in the field name so the TOML file stays readable.
// Zero values are replaced by defaults via WithDefaults.
type Tuning struct {
	// Chain budget and loop detection.
	MaxChainBudget   int `toml:"max_chain_budget"`
	LoopWindow       int `toml:"loop_window"`
	LoopMinTrail     int `toml:"loop_min_trail"`
	LoopShortRepeats int `toml:"loop_short_repeats"`
	LoopLongRepeats  int `toml:"loop_long_repeats"`

	// Dispatch ledger retention.
	LedgerSoftCutoffMinutes int `toml:"ledger_soft_cutoff_minutes"`
	LedgerMaxRecords        int `toml:"ledger_max_records"`

	// Follow-up / escalation loop.
	FollowUpIntervalSeconds int `toml:"followup_interval_seconds"`
	NudgeAfterMinutes       int `toml:"nudge_after_minutes"`
	EscalateAfterMinutes    int `toml:"escalate_after_minutes"`
	NudgeCooldownMinutes    int `toml:"nudge_cooldown_minutes"`
	MaxNudges               int `toml:"max_nudges"`

	// Heartbeat / triage loop.
	HeartbeatIntervalMinutes int `toml:"heartbeat_interval_minutes"`
	StaleDispatchMinutes     int `toml:"stale_dispatch_minutes"`

	// Immediate-on-change inbox watch.
	InboxDebounceSeconds     int `toml:"inbox_debounce_seconds"`
	InboxFallbackPollSeconds int `toml:"inbox_fallback_poll_seconds"`

	// Pending-task scan.
	PendingScanIntervalSeconds int `toml:"pending_scan_interval_seconds"`
	PendingCooldownMinutes     int `toml:"pending_cooldown_minutes"`
	PendingCycleCap            int `toml:"pending_cycle_cap"`

	// Periodic digest / evaluation.
	DigestIntervalHours     int `toml:"digest_interval_hours"`
	EvaluationIntervalHours int `toml:"evaluation_interval_hours"`

	// Coordinator.
	MaxParallelDispatch int `toml:"max_parallel_dispatch"`

	// Collaborator commands.
	EngineCommand     string   `toml:"engine_command"`
	EngineArgs        []string `toml:"engine_args"`
	ClassifierModel   string   `toml:"classifier_model"`
	GatewayCommand    string   `toml:"gateway_command"`
	ProgressRefreshMS int      `toml:"progress_refresh_ms"`
}

// LoadTuning reads tuning from a TOML file. A missing file yields pure
// defaults; a malformed file is an error.
func LoadTuning(path string) (Tuning, error) {
	data, err := os.ReadFile(path) //nolint:gosec // tuning path is controlled by the application
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Tuning{}.WithDefaults(), nil
		}
		return Tuning{}, fmt.Errorf("read tuning %s: %w", path, err)
	}
	var t Tuning
	if err := toml.Unmarshal(data, &t); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning %s: %w", path, err)
	}
	return t.WithDefaults(), nil
}

// WithDefaults returns a copy of t with zero fields replaced by defaults.
func (t Tuning) WithDefaults() Tuning {
	out := t
	def := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	def(&out.MaxChainBudget, 20)
	def(&out.LoopWindow, 6)
	def(&out.LoopMinTrail, 6)
	def(&out.LoopShortRepeats, 3)
	def(&out.LoopLongRepeats, 2)
	def(&out.LedgerSoftCutoffMinutes, 60)
	def(&out.LedgerMaxRecords, 500)
	def(&out.FollowUpIntervalSeconds, 120)
	def(&out.NudgeAfterMinutes, 5)
	def(&out.EscalateAfterMinutes, 15)
	def(&out.NudgeCooldownMinutes, 30)
	def(&out.MaxNudges, 2)
	def(&out.HeartbeatIntervalMinutes, 10)
	def(&out.StaleDispatchMinutes, 10)
	def(&out.InboxDebounceSeconds, 2)
	def(&out.InboxFallbackPollSeconds, 60)
	def(&out.PendingScanIntervalSeconds, 60)
	def(&out.PendingCooldownMinutes, 120)
	def(&out.PendingCycleCap, 2)
	def(&out.DigestIntervalHours, 24)
	def(&out.EvaluationIntervalHours, 2)
	def(&out.MaxParallelDispatch, 4)
	def(&out.ProgressRefreshMS, 8000)
	if out.EngineCommand == "" {
		out.EngineCommand = "claude"
	}
	if out.ClassifierModel == "" {
		out.ClassifierModel = "claude-haiku-4-5-20251001"
	}
	return out
}
