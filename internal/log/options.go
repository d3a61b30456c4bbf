// Copyright 2021 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package log

import (
	"io"

	"golang.org/x/exp/slices"
)

// Option modifies the settings of a logger. Options given to New,
// NewFromGlobal, Patch or a child logger only override the settings they set.
type Option func(s *settings)

// SetLevel sets the minimum level logged. Unset, it is Info.
func SetLevel(level Level) Option {
	return func(s *settings) { s.level = &level }
}

// SetCallerFile appends the caller file name to each line.
func SetCallerFile(enabled bool) Option {
	return func(s *settings) { s.caller.file = &enabled }
}

// SetCallerLine appends the caller line number to each line.
func SetCallerLine(enabled bool) Option {
	return func(s *settings) { s.caller.line = &enabled }
}

// SetCallerFunc appends the caller function name to each line.
func SetCallerFunc(enabled bool) Option {
	return func(s *settings) { s.caller.funC = &enabled }
}

// SetColour colours the level of each line.
func SetColour(enabled bool) Option {
	return func(s *settings) { s.colour = &enabled }
}

// SetWriter sets where lines are written. Unset, it is os.Stdout.
func SetWriter(writer io.Writer) Option {
	return func(s *settings) { s.writer = writer }
}

// AddContext appends key=value to each line. Values of the same
// key are joined, in the order they were added.
func AddContext(key, value string) Option {
	return func(s *settings) {
		i := slices.IndexFunc(s.context, func(kv contextKeyValues) bool {
			return kv.key == key
		})
		if i == -1 {
			s.context = append(s.context, contextKeyValues{key: key, values: []string{value}})
			return
		}
		s.context[i].values = append(s.context[i].values, value)
	}
}
