// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"github.com/urfave/cli"
)

var (
	// ScenarioFlag is the path to the scenario TOML file
	ScenarioFlag = cli.StringFlag{
		Name:  "scenario",
		Usage: "TOML scenario file to run",
	}
	// LogFlag sets the global log level
	LogFlag = cli.StringFlag{
		Name:  "log",
		Usage: "Global log level. Supports levels crit (silent), eror, warn, info, dbug and trce (trace)",
		Value: "info",
	}
	// ColourFlag enables colouring the log levels
	ColourFlag = cli.BoolFlag{
		Name:  "colour",
		Usage: "Colour the log levels",
	}
	// TreeFlag prints the validator side state once the scenario ran
	TreeFlag = cli.BoolFlag{
		Name:  "tree",
		Usage: "Print the final state of the relay parents and their collations",
	}
	// MetricsFlag dumps the metrics once the scenario ran
	MetricsFlag = cli.BoolFlag{
		Name:  "metrics",
		Usage: "Print the metrics in the prometheus text format",
	}
)

var (
	// RunFlags are the flags of the run command
	RunFlags = []cli.Flag{
		ScenarioFlag,
		TreeFlag,
		MetricsFlag,
	}
	// CheckFlags are the flags of the check command
	CheckFlags = []cli.Flag{
		ScenarioFlag,
	}
	// GlobalFlags are the flags shared by all commands
	GlobalFlags = []cli.Flag{
		LogFlag,
		ColourFlag,
	}
)
