// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

type recordingTB struct {
	failure string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Fatalf(format string, args ...any) {
	r.failure = fmt.Sprintf(format, args...)
	panic(r)
}

func capture(fn func(t TB)) (failure string) {
	recorder := &recordingTB{}
	defer func() {
		if recovered := recover(); recovered != nil {
			if recovered != recorder {
				panic(recovered)
			}
			failure = recorder.failure
		}
	}()
	fn(recorder)
	return ""
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second, "value"); got != 7 {
		t.Errorf("RequireReceive = %d, want 7", got)
	}

	failure := capture(func(tb TB) {
		RequireReceive(tb, make(chan int), 10*time.Millisecond, "waiting for %s", "nothing")
	})
	if !strings.Contains(failure, "waiting for nothing") {
		t.Errorf("failure = %q", failure)
	}
}

func TestRequireClosed(t *testing.T) {
	ch := make(chan struct{})
	close(ch)
	RequireClosed(t, ch, time.Second)

	failure := capture(func(tb TB) {
		RequireClosed(tb, make(chan struct{}), 10*time.Millisecond, "ready")
	})
	if !strings.Contains(failure, "ready") {
		t.Errorf("failure = %q", failure)
	}
}

func TestEventually(t *testing.T) {
	calls := 0
	Eventually(t, time.Second, func() bool {
		calls++
		return calls == 3
	})

	failure := capture(func(tb TB) {
		Eventually(tb, 20*time.Millisecond, func() bool { return false }, "never")
	})
	if !strings.Contains(failure, "never") {
		t.Errorf("failure = %q", failure)
	}
}

func TestLogBuffer(t *testing.T) {
	var buffer LogBuffer
	buffer.Logger().Debug("hello", "key", "value")
	if !buffer.Contains(`"msg":"hello"`) || !buffer.Contains(`"key":"value"`) {
		t.Errorf("buffer = %s", buffer.String())
	}
}
