// Copyright 2025 Certen Protocol
//
// Package clock provides the Clock port's single real implementation.
package clock

import (
	"time"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
)

// SystemClock reads wall-clock time via time.Now. It satisfies ports.Clock.
type SystemClock struct{}

// NewSystemClock constructs a SystemClock.
func NewSystemClock() *SystemClock { return &SystemClock{} }

// NowMs returns milliseconds since the Unix epoch.
func (SystemClock) NowMs() domain.TimestampMs {
	return domain.TimestampMs(time.Now().UnixMilli())
}
