// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ChainSafe/collation-scheduler/internal/log"
	"github.com/fatih/color"
	"github.com/urfave/cli"
)

var logger = log.NewFromGlobal(log.AddContext("pkg", "collation-sim"))

var ErrScenarioRequired = errors.New("scenario file is required")

var (
	runCommand = cli.Command{
		Action:    runAction,
		Name:      "run",
		Usage:     "Run a scenario against the collator protocol validator side",
		ArgsUsage: "",
		Flags:     RunFlags,
		Description: "The run command applies the scenario steps in order and checks their expectations.\n" +
			"\tUsage: collation-sim --log dbug run --scenario testdata/claim_queue.toml --tree",
	}
	checkCommand = cli.Command{
		Action:      checkAction,
		Name:        "check",
		Usage:       "Validate a scenario file",
		ArgsUsage:   "",
		Flags:       CheckFlags,
		Description: "The check command loads and validates the scenario and prints it.",
	}
)

func main() {
	app := newApp(os.Stdout)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(writer io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "collation-sim"
	app.Usage = "Collation fetch scheduling simulator"
	app.Writer = writer
	app.Flags = GlobalFlags
	app.Commands = []cli.Command{
		runCommand,
		checkCommand,
	}
	app.Before = setupLogger
	return app
}

// setupLogger sets up the global logger.
func setupLogger(ctx *cli.Context) error {
	level, err := log.ParseLevel(ctx.GlobalString(LogFlag.Name))
	if err != nil {
		return err
	}

	colour := ctx.GlobalBool(ColourFlag.Name)
	color.NoColor = !colour

	log.Patch(
		log.SetWriter(os.Stderr),
		log.SetLevel(level),
		log.SetColour(colour),
		log.SetCallerFile(level <= log.Debug),
		log.SetCallerLine(level <= log.Debug),
	)
	return nil
}

func scenarioFromFlags(ctx *cli.Context) (*Scenario, error) {
	path := ctx.String(ScenarioFlag.Name)
	if path == "" {
		return nil, ErrScenarioRequired
	}

	scenario, err := loadScenario(path)
	if err != nil {
		return nil, err
	}
	logger.Debugf("loaded scenario %s with %d steps", path, len(scenario.Steps))
	return scenario, nil
}

func runAction(ctx *cli.Context) error {
	scenario, err := scenarioFromFlags(ctx)
	if err != nil {
		return err
	}

	writer := ctx.App.Writer
	r, err := newRunner(scenario, writer)
	if err != nil {
		return err
	}

	runErr := r.run()

	if ctx.Bool(TreeFlag.Name) {
		fmt.Fprintln(writer, r.validatorSide.String())
	}

	if err := r.writeSummary(writer); err != nil {
		return err
	}

	if ctx.Bool(MetricsFlag.Name) {
		if err := r.writeMetrics(writer); err != nil {
			return err
		}
	}

	return runErr
}

func checkAction(ctx *cli.Context) error {
	scenario, err := scenarioFromFlags(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(ctx.App.Writer, scenario.String())
	return nil
}
