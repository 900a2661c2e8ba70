package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mococo/pkg/chain"
	"mococo/pkg/concurrency"
	"mococo/pkg/coordinator"
	"mococo/pkg/engine"
	"mococo/pkg/eventlog"
	"mococo/pkg/gateway"
	"mococo/pkg/ledger"
	"mococo/pkg/memfile"
	"mococo/pkg/roster"
	"mococo/pkg/trigger"
)

// drainTimeout bounds how long shutdown waits for in-flight dispatches.
const drainTimeout = 30 * time.Second

// newRunCmd creates the "mococo run" subcommand.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler in the foreground",
		Long:  "Loads the roster and tuning, opens the event log, and runs the\ntrigger producers until SIGTERM or SIGINT.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			if err := os.MkdirAll(paths.Home, 0o755); err != nil {
				return fmt.Errorf("create state dir: %w", err)
			}
			if err := os.MkdirAll(paths.MemoryDir, 0o755); err != nil {
				return fmt.Errorf("create memory dir: %w", err)
			}

			status, pid, err := DaemonStatus(paths.PIDPath)
			if err != nil {
				return err
			}
			if status == StatusRunning {
				return fmt.Errorf("scheduler already running (PID %d)", pid)
			}
			if status == StatusStale {
				fmt.Fprintln(cmd.OutOrStdout(), "removing stale PID file")
				if err := RemovePIDFile(paths.PIDPath); err != nil {
					return err
				}
			}

			if err := WritePIDFile(paths.PIDPath, os.Getpid()); err != nil {
				return err
			}

			ctx, cleanup := SetupSignalHandler(cmd.Context(), paths.PIDPath)
			defer cleanup()

			ros, err := roster.Load(paths.RosterPath)
			if err != nil {
				return fmt.Errorf("load roster: %w", err)
			}
			tuning, err := roster.LoadTuning(paths.TuningPath)
			if err != nil {
				return fmt.Errorf("load tuning: %w", err)
			}

			events, err := eventlog.Open(paths.EventsDB)
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			defer func() { _ = events.Close() }()

			store := memfile.NewStore(paths.MemoryDir)
			reg := concurrency.NewRegistry()
			led := ledger.New(ledger.Config{
				SoftCutoff: time.Duration(tuning.LedgerSoftCutoffMinutes) * time.Minute,
				MaxRecords: tuning.LedgerMaxRecords,
			})

			eng := engine.NewExecEngine(tuning.EngineCommand, tuning.EngineArgs)
			classifier := engine.NewExecClassifier(tuning.EngineCommand, tuning.ClassifierModel)

			var gw gateway.Messenger = gateway.Nop{}
			if tuning.GatewayCommand != "" {
				gw = gateway.NewExecGateway(tuning.GatewayCommand, nil,
					time.Duration(tuning.ProgressRefreshMS)*time.Millisecond)
			}

			coord := coordinator.New(coordinator.Config{
				MaxParallelDispatch: tuning.MaxParallelDispatch,
				Chains: chain.Config{
					MaxBudget:          tuning.MaxChainBudget,
					Window:             tuning.LoopWindow,
					MinTrail:           tuning.LoopMinTrail,
					ShortPeriodRepeats: tuning.LoopShortRepeats,
					LongPeriodRepeats:  tuning.LoopLongRepeats,
				},
			}, reg, led, eng, gw, ros, store, nil, events)

			followUp := trigger.NewFollowUp(trigger.FollowUpConfig{
				NudgeAfter:    time.Duration(tuning.NudgeAfterMinutes) * time.Minute,
				EscalateAfter: time.Duration(tuning.EscalateAfterMinutes) * time.Minute,
				NudgeCooldown: time.Duration(tuning.NudgeCooldownMinutes) * time.Minute,
				MaxNudges:     tuning.MaxNudges,
			}, led, reg, ros, coord, events)
			heartbeat := trigger.NewHeartbeat(trigger.HeartbeatConfig{
				StaleAfter: time.Duration(tuning.StaleDispatchMinutes) * time.Minute,
			}, classifier, coord, ros, reg, led, store, events)
			pendingScan := trigger.NewPendingScan(trigger.PendingScanConfig{
				Cooldown: time.Duration(tuning.PendingCooldownMinutes) * time.Minute,
				CycleCap: tuning.PendingCycleCap,
			}, store, ros, reg, coord, events)
			digest := trigger.NewPulse("digest", trigger.DigestPrompt, ros, reg, coord, events)
			evaluation := trigger.NewPulse("evaluation", trigger.EvaluationPrompt, ros, reg, coord, events)

			sched := trigger.NewScheduler()
			sched.Add(trigger.Task{Name: "followup", Interval: time.Duration(tuning.FollowUpIntervalSeconds) * time.Second, Run: followUp.Run})
			sched.Add(trigger.Task{Name: "heartbeat", Interval: time.Duration(tuning.HeartbeatIntervalMinutes) * time.Minute, Run: heartbeat.Run})
			sched.Add(trigger.Task{Name: "pendingscan", Interval: time.Duration(tuning.PendingScanIntervalSeconds) * time.Second, Run: pendingScan.Run})
			sched.Add(trigger.Task{Name: "digest", Interval: time.Duration(tuning.DigestIntervalHours) * time.Hour, Run: digest.Run})
			sched.Add(trigger.Task{Name: "evaluation", Interval: time.Duration(tuning.EvaluationIntervalHours) * time.Hour, Run: evaluation.Run})
			sched.Start(ctx)

			watch := trigger.NewInboxWatch(trigger.InboxWatchConfig{
				Debounce:     time.Duration(tuning.InboxDebounceSeconds) * time.Second,
				FallbackPoll: time.Duration(tuning.InboxFallbackPollSeconds) * time.Second,
			}, store, ros, reg, coord, events)
			go watch.Start(ctx)

			fmt.Fprintf(cmd.OutOrStdout(), "mococo scheduler running (PID %d), %d workers\n",
				os.Getpid(), len(ros.Workers()))

			<-ctx.Done()

			fmt.Fprintln(cmd.OutOrStdout(), "shutting down, draining dispatches")
			sched.Stop()
			if !coord.Drain(drainTimeout) {
				fmt.Fprintln(cmd.OutOrStdout(), "drain timed out, abandoning in-flight dispatches")
			}
			return nil
		},
	}
}
