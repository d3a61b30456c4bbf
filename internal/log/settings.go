// Copyright 2021 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package log

import (
	"io"
	"os"
)

type settings struct {
	writer  io.Writer
	level   *Level
	caller  callerSettings
	colour  *bool
	context []contextKeyValues
}

type contextKeyValues struct {
	key    string
	values []string
}

func newSettings(options []Option) (settings settings) {
	for _, option := range options {
		option(&settings)
	}
	return settings
}

// mergeWith sets values from other on s for the fields
// which are set in other. Context key values from other
// are appended to the ones of s.
func (s *settings) mergeWith(other settings) {
	if other.writer != nil {
		s.writer = other.writer
	}
	mergePtr(&s.level, other.level)
	s.caller.mergeWith(other.caller)
	mergePtr(&s.colour, other.colour)

	for _, kv := range other.context {
		for _, value := range kv.values {
			AddContext(kv.key, value)(s)
		}
	}
}

func (s *settings) setDefaults() {
	if s.writer == nil {
		s.writer = os.Stdout
	}
	defaultPtr(&s.level, Info)
	s.caller.setDefaults()
	defaultPtr(&s.colour, false)
}

// mergePtr sets *dst to a copy of the value of src, if src is set.
func mergePtr[T any](dst **T, src *T) {
	if src == nil {
		return
	}
	value := *src
	*dst = &value
}

func defaultPtr[T any](p **T, value T) {
	if *p == nil {
		*p = &value
	}
}
