// Package recorder defines the narrow interface between the
// recording-entry engine and the stream capture/mux/writer pipeline. The
// recorder itself — tuner acquisition, demuxing, file writing — is
// entirely out of scope for this module (spec §1); the engine only ever
// starts and stops a subscription and lets the recorder report back.
package recorder

import (
	"context"

	"github.com/whisper-darkly/dvr-engine/entry"
)

// Stop codes the recorder may report through Entry.SetResult. OK means the
// file was produced without error; any other value is surfaced to the
// operator as last_error and counted against the autorec Deduper's
// "successful earlier recording" test (spec §4.6).
const (
	StopCodeOK = iota
	StopCodeRecorderError
	StopCodeNoSpace
	StopCodeAborted
	StopCodeScrambled
)

// Recorder is the external collaborator that actually captures a stream.
// Subscribe/Unsubscribe are called synchronously under the engine's global
// lock (spec §5); the recorder may spawn an independent capture task that
// reports back by re-entering the engine (entry.Entry's runtime-state
// setters) under the same lock.
type Recorder interface {
	// Subscribe starts (or resumes) capture for e. The recorder is
	// expected to asynchronously drive e's rec_state and, eventually,
	// filename/directory/errors via the entry's exported setters.
	Subscribe(ctx context.Context, e *entry.Entry) error

	// Unsubscribe stops capture for e. stopCode is the reason the engine
	// is tearing the subscription down (not necessarily an error — a
	// normal stop-recording timer fire passes StopCodeOK).
	Unsubscribe(ctx context.Context, e *entry.Entry, stopCode int) error
}
