// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gpio

import (
	"testing"
	"time"
)

func TestSimLinesForceHighRange(t *testing.T) {
	l := NewSimLines()
	defer l.Close()

	if err := l.SetForceHighRange(1, true); err != nil {
		t.Fatal(err)
	}
	if !l.ForceHighRange1 {
		t.Error("ForceHighRange1 not set")
	}
	if err := l.SetForceHighRange(2, true); err != nil {
		t.Fatal(err)
	}
	if !l.ForceHighRange2 {
		t.Error("ForceHighRange2 not set")
	}
}

func TestSimLinesButtonEvents(t *testing.T) {
	l := NewSimLines()
	defer l.Close()

	events, err := l.WatchButton()
	if err != nil {
		t.Fatal(err)
	}
	want := ButtonEvent{Rising: false, At: time.Now()}
	l.InjectButtonEvent(want)

	select {
	case got := <-events:
		if got.Rising != want.Rising {
			t.Errorf("Rising = %v, want %v", got.Rising, want.Rising)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for button event")
	}
}
