// Copyright 2021 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseLevel(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		s          string
		level      Level
		errWrapped error
		errMessage string
	}{
		"trace":       {s: "trace", level: Trace},
		"trce":        {s: "trce", level: Trace},
		"debug_upper": {s: "DEBUG", level: Debug},
		"dbug":        {s: "dbug", level: Debug},
		"info":        {s: "info", level: Info},
		"warn":        {s: "warn", level: Warn},
		"eror":        {s: "eror", level: Error},
		"crit":        {s: "crit", level: Critical},
		"numerical":   {s: "3", level: Warn},
		"numerical_out_of_range": {
			s:          "9",
			errWrapped: ErrLevelNotRecognised,
			errMessage: "level is not recognised: 9",
		},
		"unknown": {
			s:          "verbose",
			errWrapped: ErrLevelNotRecognised,
			errMessage: "level is not recognised: verbose",
		},
	}

	for name, testCase := range testCases {
		testCase := testCase
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			level, err := ParseLevel(testCase.s)

			require.ErrorIs(t, err, testCase.errWrapped)
			if testCase.errWrapped != nil {
				assert.EqualError(t, err, testCase.errMessage)
			}
			assert.Equal(t, testCase.level, level)
		})
	}
}

func Test_Level_format(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "INFO    ", Info.format(false))
	assert.Equal(t, "CRITICAL", Critical.format(false))
	assert.Equal(t, "???", Level(100).String())
}
