// Package main runs arm programs against a simulated or physical backend.
package main

import (
	"context"
	"time"

	"github.com/alecthomas/kong"
	"github.com/edaniels/golog"
	goutils "go.viam.com/utils"

	"github.com/armkit/armkit/control"
	"github.com/armkit/armkit/session"
)

var logger = golog.NewDevelopmentLogger("armkit")

var cli struct {
	Program string `arg:"" optional:"" default:"goto-home" help:"Program to run (goto-home, circle, square-pid)."`

	Backend string `default:"sim" enum:"sim,dynamixel" help:"Robot backend."`
	Port    string `help:"Serial port for the dynamixel backend, e.g. /dev/ttyUSB0."`
	Baud    int    `default:"1000000" help:"Serial baud rate."`

	Telemetry string `help:"Address to serve websocket telemetry on, e.g. :8080."`

	Tick               time.Duration `default:"50ms" help:"Control loop tick period; 0 free-runs (sim only)."`
	ActuateEvery       int           `default:"3" help:"Send a velocity command every N ticks."`
	Tolerance          float64       `default:"5" help:"Goal tolerance in mm."`
	StepBudget         int           `default:"10000" help:"Max ticks per goal; 0 is unlimited."`
	NullspaceGain      float64       `default:"0" help:"Gain on the elbow-elevation secondary objective."`
	AbortOnSingularity bool          `help:"Abort instead of warning when near a singularity."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("armkit"),
		kong.Description("Velocity control for a 4-joint redundant arm."),
		kong.UsageOnError(),
	)
	goutils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	cfg := session.Config{
		Backend:       cli.Backend,
		SerialPort:    cli.Port,
		BaudRate:      cli.Baud,
		TelemetryAddr: cli.Telemetry,
		NullspaceGain: cli.NullspaceGain,
		Loop: control.Config{
			TickPeriod:         cli.Tick,
			ActuateEvery:       cli.ActuateEvery,
			GoalTolerance:      cli.Tolerance,
			StepBudget:         cli.StepBudget,
			AbortOnSingularity: cli.AbortOnSingularity,
		},
	}

	s, err := session.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Close(closeCtx); err != nil {
			logger.Errorw("session close failed", "error", err)
		}
	}()

	_, err = s.Run(ctx, cli.Program)
	return err
}
