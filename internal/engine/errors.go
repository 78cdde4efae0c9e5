// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package engine

import (
	"context"
	"time"

	"go.chromium.org/luci/common/errors"
)

// TimeoutTag marks failures caused by a node exceeding its wall-clock
// ceiling rather than by the check/fix itself.
var TimeoutTag = errors.BoolTag{Key: errors.NewTagKey("node timeout reached")}

// failureTagKey carries the stable machine-readable tag of a failure. The
// tag strings are an external contract used for metrics aggregation and bug
// filing and must be preserved verbatim per failure mode.
var failureTagKey = errors.NewTagKey("failure tag")

// FailureTag attaches the machine-readable tag to an error.
//
// Usage: errors.Reason("...").Tag(engine.FailureTag("out_of_time")).Err()
func FailureTag(tag string) errors.TagValue {
	return errors.TagValue{Key: failureTagKey, Value: tag}
}

// FailureTagOf extracts the machine-readable tag from the error, returning
// an empty string when no tag is attached.
func FailureTagOf(err error) string {
	if v, ok := errors.TagValueIn(failureTagKey, err); ok {
		if tag, ok := v.(string); ok {
			return tag
		}
	}
	return ""
}

// Stable failure tags raised by the engine itself.
const (
	// The outer job deadline expired before the work finished.
	outOfTimeTag = "out_of_time"
	// The ordered repair list was exhausted with failures remaining.
	repairListExhaustedTag = "repair_list_exhausted"
)

// runWithDeadline invokes f with a hard wall-clock ceiling.
//
// A call that hangs past the ceiling is reported as a tagged timeout failure
// of that node, not as a process hang. The runaway goroutine is abandoned;
// its context is cancelled so well-behaved calls unwind on their own.
func runWithDeadline(ctx context.Context, timeout time.Duration, name string, f func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	// Buffered channel needed to not block writing when it is no longer read in select.
	c := make(chan error, 1)
	go func() {
		c <- f(ctx)
	}()
	select {
	case err := <-c:
		return err
	case <-ctx.Done():
		return errors.Reason("%s: timeout %s reached", name, timeout).Tag(TimeoutTag).Err()
	}
}

// checkOutOfTime fails when the outer job deadline has already expired, so
// that new expensive work is not started past the deadline.
func checkOutOfTime(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.Reason("out of time: %s", ctx.Err()).Tag(FailureTag(outOfTimeTag)).Err()
	default:
		return nil
	}
}
