package p2p

import (
	"sync"
	"time"
)

const (
	weightSamples = 3

	// initialSpeed is the throughput every sample starts with, in bytes/sec.
	initialSpeed = 100 * 1024 * 1024
)

// NodeWeight scores a peer for request routing. Higher is better.
type NodeWeight struct {
	mtx sync.Mutex

	speeds   [weightSamples]float64
	speedPos int

	requests   [weightSamples]int64 // unix milliseconds
	requestPos int

	timeouts       uint32
	errorResponses uint32

	now func() time.Time
}

// NewNodeWeight creates a weight with optimistic speed samples and request
// timestamps set to the creation time.
func NewNodeWeight() *NodeWeight {
	return newNodeWeight(time.Now)
}

func newNodeWeight(now func() time.Time) *NodeWeight {
	w := &NodeWeight{now: now}
	created := now().UnixMilli()
	for i := 0; i < weightSamples; i++ {
		w.speeds[i] = initialSpeed
		w.requests[i] = created
	}
	return w
}

// AppendSpeed records a throughput sample in bytes per second, replacing
// the oldest one.
func (w *NodeWeight) AppendSpeed(bytesPerSecond float64) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.speeds[w.speedPos] = bytesPerSecond
	w.speedPos = (w.speedPos + 1) % weightSamples
}

// AppendRequestTime records that a request was sent at t.
func (w *NodeWeight) AppendRequestTime(t time.Time) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.requests[w.requestPos] = t.UnixMilli()
	w.requestPos = (w.requestPos + 1) % weightSamples
}

// AddTimeout increments and returns the timeout counter.
func (w *NodeWeight) AddTimeout() uint32 {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.timeouts++
	return w.timeouts
}

// AddErrorResponse increments and returns the error response counter.
func (w *NodeWeight) AddErrorResponse() uint32 {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.errorResponses++
	return w.errorResponses
}

// Counters returns the cumulative timeout and error response counts.
func (w *NodeWeight) Counters() (timeouts, errorResponses uint32) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	return w.timeouts, w.errorResponses
}

// Weight returns (average speed + average request age in ms), divided by
// the error response and timeout counters each incremented by one.
func (w *NodeWeight) Weight() float64 {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	now := w.now().UnixMilli()

	var speed, age float64
	for i := 0; i < weightSamples; i++ {
		speed += w.speeds[i]
		age += float64(now - w.requests[i])
	}
	speed /= weightSamples
	age /= weightSamples

	score := speed + age
	score /= float64(w.errorResponses + 1)
	score /= float64(w.timeouts + 1)
	return score
}
