package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homefleet-core/internal/command"
	"github.com/nerrad567/homefleet-core/internal/device"
	"github.com/nerrad567/homefleet-core/internal/schedule"
	"github.com/nerrad567/homefleet-core/internal/telemetry"
)

// withApp opens the app for a one-shot command and wires it with a broker
// link that dials only if fn publishes. Logs go to stderr; stdout carries
// the JSON result.
func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, getConfigPath(opts.configPath), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	link := newBrokerLink(a.cfg.MQTT, a.log.With("component", "mqtt"))
	a.onClose(link.Close)
	a.wire(ctx, nil, link, nil)

	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parsePayload reads the --payload flag. Empty means no payload.
func parsePayload(raw string) (any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("--payload is not valid JSON: %w", err)
	}
	return v, nil
}

// targetFlags are the device reference and action flags shared by dispatch
// and schedule create.
type targetFlags struct {
	deviceID string
	device   string
	action   string
	payload  string
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.deviceID, "device-id", "", "device id (wins over --device)")
	cmd.Flags().StringVar(&f.device, "device", "", "device name, case-insensitive")
	cmd.Flags().StringVar(&f.action, "action", "", "action to send, e.g. on, off, toggle")
	cmd.Flags().StringVar(&f.payload, "payload", "", "optional JSON payload")
	_ = cmd.MarkFlagRequired("action") //nolint:errcheck // flag registered above
}

// ─── dispatch ───────────────────────────────────────────────────────

func newDispatchCmd(opts *options) *cobra.Command {
	var target targetFlags
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Send a command to a device now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := parsePayload(target.payload)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				log, err := a.commands.Dispatch(ctx, command.Request{
					DeviceID:   target.deviceID,
					DeviceName: target.device,
					Action:     target.action,
					Payload:    payload,
					Origin:     command.OriginAPI,
				})
				// A failed log is still the record of the attempt.
				if log != nil {
					if printErr := printJSON(cmd, log); printErr != nil {
						return printErr
					}
				}
				return err
			})
		},
	}
	target.register(cmd)
	return cmd
}

// ─── schedule ───────────────────────────────────────────────────────

func newScheduleCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Create, list and cancel scheduled commands",
	}
	cmd.AddCommand(
		newScheduleCreateCmd(opts),
		newScheduleListCmd(opts),
		newScheduleCancelCmd(opts),
		newScheduleRunDueCmd(opts),
	)
	return cmd
}

func newScheduleCreateCmd(opts *options) *cobra.Command {
	var (
		target targetFlags
		at     string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a command for later",
		Long: `Schedule a command. --at accepts RFC 3339 (2026-10-19T19:00:00+07:00) or a
local time without offset (2026-10-19 19:00), read in the site timezone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := parsePayload(target.payload)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				s, err := a.schedules.Create(ctx, schedule.Request{
					DeviceID:   target.deviceID,
					DeviceName: target.device,
					Action:     target.action,
					Payload:    payload,
					RunAt:      at,
					Origin:     command.OriginAPI,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, s)
			})
		},
	}
	target.register(cmd)
	cmd.Flags().StringVar(&at, "at", "", "when to run the command")
	_ = cmd.MarkFlagRequired("at") //nolint:errcheck // flag registered above
	return cmd
}

func newScheduleListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schedules, soonest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				schedules, err := a.schedules.List(ctx)
				if err != nil {
					return err
				}
				if schedules == nil {
					schedules = []schedule.Schedule{}
				}
				return printJSON(cmd, schedules)
			})
		},
	}
}

func newScheduleCancelCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <schedule-id>",
		Short: "Cancel a schedule that has not run yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.schedules.Cancel(ctx, args[0]); err != nil {
					return err
				}
				s, err := a.schedules.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, s)
			})
		},
	}
}

// newScheduleRunDueCmd fires due schedules once. It serves installs that run
// serve with the scheduler disabled and drive it from cron instead.
func newScheduleRunDueCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run-due",
		Short: "Fire every schedule that is due, once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				runner := schedule.NewRunner(a.scheduleRepo, a.commands, schedule.RunnerConfig{
					BatchSize: a.cfg.Scheduler.BatchSize,
				})
				runner.SetLogger(a.log.With("component", "scheduler"))
				runner.SetRecorder(a.metrics)

				fired, err := runner.RunDue(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int{"fired": fired})
			})
		},
	}
}

// ─── interpret ──────────────────────────────────────────────────────

func newInterpretCmd(opts *options) *cobra.Command {
	var execute bool
	cmd := &cobra.Command{
		Use:   "interpret <prompt>",
		Short: "Read a natural-language command",
		Long: `Interpret a natural-language command such as "bật đèn phòng khách lúc 19:00"
or "turn off fan". Without --execute only the interpretation is printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if !execute {
					in, err := a.interpreter.Interpret(ctx, prompt)
					if err != nil {
						return err
					}
					return printJSON(cmd, in)
				}

				res, err := a.assistant.Handle(ctx, prompt)
				if res != nil {
					if printErr := printJSON(cmd, res); printErr != nil {
						return printErr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&execute, "execute", false, "dispatch or schedule the interpreted command")
	return cmd
}

// ─── devices ────────────────────────────────────────────────────────

func newDevicesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect and manage registered devices",
	}
	cmd.AddCommand(
		newDevicesListCmd(opts),
		newDevicesGetCmd(opts),
		newDevicesAddCmd(opts),
		newDevicesReadingsCmd(opts),
		newDevicesDeleteCmd(opts),
	)
	return cmd
}

func newDevicesListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List devices by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				devices, err := a.registry.List(ctx)
				if err != nil {
					return err
				}
				if devices == nil {
					devices = []device.Device{}
				}
				return printJSON(cmd, devices)
			})
		},
	}
}

func newDevicesGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id-or-name>",
		Short: "Show one device with its sensors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				d, err := a.registry.Lookup(ctx, args[0], args[0])
				if err != nil {
					return fmt.Errorf("device %q: %w", args[0], err)
				}
				return printJSON(cmd, d)
			})
		},
	}
}

func newDevicesAddCmd(opts *options) *cobra.Command {
	var d device.Device
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a device by hand",
		Long: `Register a device by hand. A running serve process subscribes its topics on
the next subscription pass; discovery wildcards cover them before that.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.registry.Create(ctx, &d); err != nil {
					return err
				}
				return printJSON(cmd, d)
			})
		},
	}
	cmd.Flags().StringVar(&d.Name, "name", "", "unique device name")
	cmd.Flags().StringVar(&d.Identifier, "identifier", "", "hardware identifier the device reports")
	cmd.Flags().StringVar(&d.Type, "type", "", "device type (default "+device.DefaultType+")")
	cmd.Flags().StringVar(&d.Location, "location", "", "free-form location")
	cmd.Flags().StringVar(&d.CommandTopic, "command-topic", "", "topic commands are published to")
	cmd.Flags().StringVar(&d.StateTopic, "state-topic", "", "topic the device reports state on")
	cmd.Flags().StringVar(&d.TelemetryTopic, "telemetry-topic", "", "topic the device reports readings on")
	_ = cmd.MarkFlagRequired("name") //nolint:errcheck // flag registered above
	return cmd
}

func newDevicesReadingsCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "readings <id-or-name>",
		Short: "List a device's readings, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				d, err := a.registry.Lookup(ctx, args[0], args[0])
				if err != nil {
					return fmt.Errorf("device %q: %w", args[0], err)
				}
				readings, err := a.readings.ListReadings(ctx, d.ID, limit)
				if err != nil {
					return err
				}
				if readings == nil {
					readings = []telemetry.Reading{}
				}
				return printJSON(cmd, readings)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum readings to show (default 50)")
	return cmd
}

func newDevicesDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id-or-name>",
		Short: "Remove a device and its sensors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				d, err := a.registry.Lookup(ctx, args[0], args[0])
				if err != nil {
					return fmt.Errorf("device %q: %w", args[0], err)
				}
				if err := a.registry.Delete(ctx, d.ID); err != nil {
					return err
				}
				return printJSON(cmd, map[string]string{"deleted": d.ID})
			})
		},
	}
}

// ─── logs ───────────────────────────────────────────────────────────

func newLogsCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List command logs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				logs, err := a.commands.ListLogs(ctx, limit)
				if err != nil {
					return err
				}
				if logs == nil {
					logs = []command.CommandLog{}
				}
				return printJSON(cmd, logs)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", command.DefaultLogLimit, "maximum logs to show")
	return cmd
}
