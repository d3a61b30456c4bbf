// Copyright 2021 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package log

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// callerSettings selects which parts of the caller are appended to log lines.
type callerSettings struct {
	file *bool
	line *bool
	funC *bool
}

func (c *callerSettings) mergeWith(other callerSettings) {
	mergePtr(&c.file, other.file)
	mergePtr(&c.line, other.line)
	mergePtr(&c.funC, other.funC)
}

func (c *callerSettings) setDefaults() {
	defaultPtr(&c.file, false)
	defaultPtr(&c.line, false)
	defaultPtr(&c.funC, false)
}

func (c callerSettings) enabled() bool {
	return *c.file || *c.line || *c.funC
}

// callerDepth skips getCallerString, Logger.log and the exported logging method.
const callerDepth = 3

// getCallerString returns the caller of the exported logging
// method, for example `validator_side.go:L42:HandleAdvertisement`.
func getCallerString(settings callerSettings) string {
	if !settings.enabled() {
		return ""
	}

	pc, file, line, ok := runtime.Caller(callerDepth)
	if !ok {
		return "error"
	}

	var builder strings.Builder
	appendField := func(field string) {
		if builder.Len() > 0 {
			builder.WriteByte(':')
		}
		builder.WriteString(field)
	}

	if *settings.file {
		appendField(filepath.Base(file))
	}

	if *settings.line {
		appendField("L" + strconv.Itoa(line))
	}

	if *settings.funC {
		if details := runtime.FuncForPC(pc); details != nil {
			appendField(strings.TrimLeft(filepath.Ext(details.Name()), "."))
		}
	}

	return builder.String()
}
