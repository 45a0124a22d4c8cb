// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package liveview

import (
	"testing"
	"time"

	"github.com/ethz-csg/rocketlogger-go/shm"
)

type fakeStatus struct {
	sampling, webEnable bool
}

func (f *fakeStatus) Read() shm.Status {
	return shm.Status{Sampling: f.sampling, WebEnable: f.webEnable}
}

type fakeData struct {
	timestampMs int64
	buffers     [shm.RingBufferScaleCount]*shm.RingBuffer
}

func newFakeData(rowWidth int) *fakeData {
	var f fakeData
	for s := shm.RingBufferScale(0); s < shm.RingBufferScaleCount; s++ {
		buf := make([]byte, shm.RingBufferSize(rowWidth))
		rb := shm.NewRingBuffer(buf, rowWidth)
		rb.Reset()
		f.buffers[s] = rb
	}
	return &f
}

func (f *fakeData) TimestampMs() int64                              { return f.timestampMs }
func (f *fakeData) Buffer(scale shm.RingBufferScale) *shm.RingBuffer { return f.buffers[scale] }

// fakeSem is a non-blocking stand-in for shm.SemaphoreSet: Lock/Unlock are
// no-ops (the fake data segment needs no cross-process exclusion), and
// Wait either returns immediately (a publish already "happened", signaled
// via the wake channel) or times out, mirroring shm.ErrSemTimeout.
type fakeSem struct {
	wake chan struct{}
}

func newFakeSem() *fakeSem { return &fakeSem{wake: make(chan struct{}, 1)} }

func (f *fakeSem) Lock(time.Duration) error { return nil }
func (f *fakeSem) Unlock() error            { return nil }
func (f *fakeSem) notify()                  { f.wake <- struct{}{} }
func (f *fakeSem) Wait(timeout time.Duration) error {
	select {
	case <-f.wake:
		return nil
	case <-time.After(timeout):
		return shm.ErrSemTimeout
	}
}

func depsFor(status *fakeStatus, data *fakeData, sem *fakeSem) Deps {
	return Deps{
		Status:   status,
		OpenData: func() (DataReader, error) { return data, nil },
		OpenSems: func() (Semaphore, error) { return sem, nil },
	}
}

func TestQueryShortCircuitsWhenNotSampling(t *testing.T) {
	status := &fakeStatus{sampling: false, webEnable: true}
	resp, err := Query(Request{RequestID: "r1", GetData: true}, Deps{
		Status: status,
		OpenData: func() (DataReader, error) {
			t.Fatal("must not open data segment when sampling is inactive")
			return nil, nil
		},
		OpenSems: func() (Semaphore, error) {
			t.Fatal("must not open semaphore set when sampling is inactive")
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Sampling || resp.Data != nil {
		t.Errorf("got %+v, want sampling=false and no data", resp)
	}
}

func TestQueryShortCircuitsWhenWebDisabled(t *testing.T) {
	status := &fakeStatus{sampling: true, webEnable: false}
	resp, err := Query(Request{RequestID: "r1", GetData: true}, Deps{
		Status: status,
		OpenData: func() (DataReader, error) {
			t.Fatal("must not open data segment when web view is disabled")
			return nil, nil
		},
		OpenSems: func() (Semaphore, error) {
			t.Fatal("must not open semaphore set when web view is disabled")
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !resp.Sampling || resp.WebEnable || resp.Data != nil {
		t.Errorf("got %+v, want sampling=true web_enable=false and no data", resp)
	}
}

func TestQueryShortCircuitsWhenGetDataFalse(t *testing.T) {
	status := &fakeStatus{sampling: true, webEnable: true}
	opened := false
	resp, err := Query(Request{RequestID: "r1", GetData: false}, Deps{
		Status: status,
		OpenData: func() (DataReader, error) {
			opened = true
			return nil, nil
		},
		OpenSems: func() (Semaphore, error) { return nil, nil },
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if opened {
		t.Error("must not open the data segment when get-data is false")
	}
	if resp.Data != nil {
		t.Errorf("got data %v, want nil", resp.Data)
	}
}

func TestQueryReturnsImmediatelyWhenNewerThanLastSeen(t *testing.T) {
	status := &fakeStatus{sampling: true, webEnable: true}
	data := newFakeData(2)
	data.buffers[shm.Scale1s].Add([]int64{1, 2})
	data.buffers[shm.Scale1s].Add([]int64{3, 4})
	data.timestampMs = 5000

	deps := depsFor(status, data, newFakeSem())

	resp, err := Query(Request{RequestID: "r1", GetData: true, TimeScale: shm.Scale1s, LastSeenMs: 1000}, deps)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.TimeMs != 5000 {
		t.Errorf("TimeMs = %d, want 5000", resp.TimeMs)
	}
	if len(resp.Data) == 0 {
		t.Fatal("expected rows newer than last-seen to be returned immediately")
	}
	if resp.BufferSize != shm.RingBufferCapacity {
		t.Errorf("BufferSize = %d, want %d", resp.BufferSize, shm.RingBufferCapacity)
	}
}

func TestQueryBlocksThenReturnsOnNextPublish(t *testing.T) {
	status := &fakeStatus{sampling: true, webEnable: true}
	data := newFakeData(1)
	data.timestampMs = 1000 // not newer than LastSeenMs yet

	sem := newFakeSem()
	deps := depsFor(status, data, sem)

	done := make(chan *Response, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := Query(Request{RequestID: "r1", GetData: true, TimeScale: shm.Scale1s, LastSeenMs: 1000}, deps)
		if err != nil {
			errCh <- err
			return
		}
		done <- resp
	}()

	// Give Query a moment to reach its first Wait call, then publish.
	time.Sleep(10 * time.Millisecond)
	data.buffers[shm.Scale1s].Add([]int64{42})
	data.timestampMs = 2000
	sem.notify()

	select {
	case err := <-errCh:
		t.Fatalf("Query: %v", err)
	case resp := <-done:
		if resp.TimeMs != 2000 {
			t.Errorf("TimeMs = %d, want 2000", resp.TimeMs)
		}
		if len(resp.Data) != 1 || resp.Data[0][0] != 42 {
			t.Errorf("Data = %v, want one row [42]", resp.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Query did not return after the wait semaphore was notified")
	}
}

func TestQueryReturnsEmptyOnWaitTimeout(t *testing.T) {
	status := &fakeStatus{sampling: true, webEnable: true}
	data := newFakeData(1)
	data.timestampMs = 1000

	sem := &fakeSem{wake: make(chan struct{})} // never notified

	resp, err := Query(Request{RequestID: "r1", GetData: true, TimeScale: shm.Scale1s, LastSeenMs: 1000}, depsFor(status, data, sem))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Data != nil {
		t.Errorf("Data = %v, want nil after a wait timeout", resp.Data)
	}
}
