// Copyright 2021 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package log

// timePrefixRegex matches the time.RFC3339 timestamp starting each line.
const timePrefixRegex = `^\d{4}-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])` +
	`T([01]\d|2[0-3]):[0-5]\d:([0-5]\d|60)` +
	`(Z|[+-]([01]\d|2[0-3]):[0-5]\d) `

func ptrTo[T any](value T) *T { return &value }

func callerSettingsAll(enabled bool) callerSettings {
	return callerSettings{
		file: ptrTo(enabled),
		line: ptrTo(enabled),
		funC: ptrTo(enabled),
	}
}
