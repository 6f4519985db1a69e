// ABOUTME: Test doubles for the playback scheduler
// ABOUTME: Manual audio clock, recording sink and fake poll timers
package playback

import (
	"encoding/binary"
	"sort"
	"testing"
	"time"

	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
	"github.com/Resonate-Protocol/livetalk-go/pkg/audio/output"
)

type placement struct {
	at  time.Duration
	dur time.Duration
	buf audio.Buffer
}

type fakeSink struct {
	now       time.Duration
	scheduled []placement

	suspended bool
	resumeErr error
	resumes   int

	depth    int
	maxDepth int

	onSchedule func(n int)
}

func (f *fakeSink) CurrentTime() time.Duration {
	return f.now
}

func (f *fakeSink) Schedule(buf audio.Buffer, at time.Duration) error {
	f.depth++
	defer func() { f.depth-- }()
	f.maxDepth = max(f.maxDepth, f.depth)

	if f.suspended {
		return output.ErrClockSuspended
	}
	f.scheduled = append(f.scheduled, placement{at: at, dur: buf.Duration(), buf: buf})
	if f.onSchedule != nil {
		f.onSchedule(len(f.scheduled))
	}
	return nil
}

func (f *fakeSink) Resume() error {
	f.resumes++
	if f.resumeErr != nil {
		return f.resumeErr
	}
	f.suspended = false
	return nil
}

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeTimers struct {
	sink    *fakeSink
	pending []*fakeTimer
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: ft.sink.now + d, f: f}
	ft.pending = append(ft.pending, t)
	return t
}

// live returns armed timers in deadline order
func (ft *fakeTimers) live() []*fakeTimer {
	var out []*fakeTimer
	for _, t := range ft.pending {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].at < out[j].at })
	return out
}

// advance moves the clock to `to`, firing due timers in order
func (ft *fakeTimers) advance(to time.Duration) {
	for {
		due := ft.live()
		if len(due) == 0 || due[0].at > to {
			break
		}
		t := due[0]
		ft.sink.now = max(ft.sink.now, t.at)
		t.fired = true
		t.f()
	}
	ft.sink.now = max(ft.sink.now, to)
}

type speakingLog struct {
	events []bool
}

func (l *speakingLog) record(speaking bool) {
	l.events = append(l.events, speaking)
}

func (l *speakingLog) count(v bool) int {
	n := 0
	for _, e := range l.events {
		if e == v {
			n++
		}
	}
	return n
}

type harness struct {
	sink     *fakeSink
	timers   *fakeTimers
	speaking *speakingLog
	s        *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	sink := &fakeSink{}
	timers := &fakeTimers{sink: sink}
	speaking := &speakingLog{}
	s := New(sink, Options{
		OnSpeaking: speaking.record,
		AfterFunc:  timers.AfterFunc,
	})
	return &harness{sink: sink, timers: timers, speaking: speaking, s: s}
}

// at advances the clock to ms, firing polls on the way
func (h *harness) at(ms int) {
	h.timers.advance(time.Duration(ms) * time.Millisecond)
}

// pcmChunk builds a 24kHz PCM16 chunk lasting ms milliseconds
func pcmChunk(ms int) audio.Chunk {
	samples := ms * 24
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], 0x2000)
	}
	return audio.Chunk{Data: data, MIMEType: "audio/pcm;rate=24000"}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
