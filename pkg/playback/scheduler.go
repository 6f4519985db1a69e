// ABOUTME: Cursor-based playback scheduler with a re-entrancy guarded pass
// ABOUTME: Places chunks gaplessly on the audio clock and tracks speaking state
package playback

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
	"github.com/Resonate-Protocol/livetalk-go/pkg/audio/output"
	"github.com/Resonate-Protocol/livetalk-go/pkg/audio/resample"
)

const (
	DefaultStartDelay    = 350 * time.Millisecond
	DefaultUnderrunDelay = 100 * time.Millisecond
	DefaultFade          = 5 * time.Millisecond
	DefaultMinPoll       = 50 * time.Millisecond
)

// Clock is the audio clock playback is placed on
type Clock interface {
	CurrentTime() time.Duration
}

// Sink plays buffers at clock times. Schedule may fail with
// output.ErrClockSuspended until Resume succeeds.
type Sink interface {
	Clock
	Schedule(buf audio.Buffer, at time.Duration) error
	Resume() error
}

// rated is a sink that renders at a fixed sample rate
type rated interface {
	SampleRate() int
}

// Decoder turns a wire chunk into samples. decode.Registry implements it.
type Decoder interface {
	Decode(chunk audio.Chunk) (audio.Buffer, error)
}

// Timer is a pending poll
type Timer interface {
	Stop() bool
}

// AfterFunc arms a poll. time.AfterFunc is the default.
type AfterFunc func(d time.Duration, f func()) Timer

// Recorder observes scheduler events
type Recorder interface {
	ChunkReceived()
	ChunkMalformed()
	ChunkScheduled(ahead time.Duration)
	Underrun()
	TurnStarted()
	TurnEnded()
}

type nopRecorder struct{}

func (nopRecorder) ChunkReceived()               {}
func (nopRecorder) ChunkMalformed()              {}
func (nopRecorder) ChunkScheduled(time.Duration) {}
func (nopRecorder) Underrun()                    {}
func (nopRecorder) TurnStarted()                 {}
func (nopRecorder) TurnEnded()                   {}

// Options configures a Scheduler. Zero durations take the defaults.
type Options struct {
	StartDelay    time.Duration
	UnderrunDelay time.Duration
	Fade          time.Duration
	MinPoll       time.Duration

	Decoder  Decoder
	Logger   *slog.Logger
	Recorder Recorder

	// OnSpeaking is called with true when a turn becomes audible and with
	// false exactly once when it has finished playing
	OnSpeaking func(speaking bool)

	AfterFunc AfterFunc
}

// Stats is a snapshot of scheduler state
type Stats struct {
	Received  int64
	Scheduled int64
	Malformed int64
	Underruns int64
	Turns     int64

	Queued   int
	Cursor   time.Duration
	Ahead    time.Duration
	Speaking bool
}

// Scheduler owns the jitter buffer and the playback cursor
type Scheduler struct {
	sink   Sink
	opts   Options
	logger *slog.Logger

	// rate is the sink's render rate, or 0 when the sink does not say
	rate int

	mu         sync.Mutex
	queue      *BufferQueue
	cursor     time.Duration
	firstChunk bool
	epoch      uint64
	active     bool
	scheduling bool
	closed     bool
	poll       Timer

	stats Stats
}

// New creates a scheduler in the Idle state
func New(sink Sink, opts Options) *Scheduler {
	if opts.StartDelay <= 0 {
		opts.StartDelay = DefaultStartDelay
	}
	if opts.UnderrunDelay <= 0 {
		opts.UnderrunDelay = DefaultUnderrunDelay
	}
	if opts.Fade < 0 {
		opts.Fade = 0
	} else if opts.Fade == 0 {
		opts.Fade = DefaultFade
	}
	if opts.MinPoll <= 0 {
		opts.MinPoll = DefaultMinPoll
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		}
	}

	s := &Scheduler{
		sink:       sink,
		opts:       opts,
		logger:     opts.Logger,
		queue:      NewBufferQueue(),
		firstChunk: true,
	}
	if r, ok := sink.(rated); ok {
		s.rate = r.SampleRate()
	}
	return s
}

// Enqueue decodes chunk and queues it for playback. A malformed chunk is
// logged and skipped. The scheduling pass runs unless one already is.
func (s *Scheduler) Enqueue(chunk audio.Chunk) {
	s.opts.Recorder.ChunkReceived()

	var (
		buf audio.Buffer
		err error
	)
	if s.opts.Decoder != nil {
		buf, err = s.opts.Decoder.Decode(chunk)
	} else {
		buf, err = decodePCM(chunk)
	}
	if err != nil {
		s.logger.Warn("skipping malformed chunk", "mime", chunk.MIMEType, "bytes", len(chunk.Data), "error", err)
		s.opts.Recorder.ChunkMalformed()
		s.mu.Lock()
		s.stats.Received++
		s.stats.Malformed++
		s.mu.Unlock()
		return
	}

	// Convert up front so the cursor advances by exactly what the sink plays
	if s.rate > 0 && len(buf.Samples) > 0 && buf.SampleRate != s.rate {
		buf = resample.Convert(buf, s.rate)
	}

	s.mu.Lock()
	s.stats.Received++
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(buf.Samples) > 0 {
		s.queue.Push(buf)
	}
	s.mu.Unlock()

	s.trigger()
}

// decodePCM handles chunks when no Decoder is configured
func decodePCM(chunk audio.Chunk) (audio.Buffer, error) {
	format, err := audio.ParseMIME(chunk.MIMEType, audio.OutputSampleRate)
	if chunk.MIMEType == "" {
		format, err = audio.Format{Codec: "pcm", SampleRate: audio.OutputSampleRate, Channels: 1}, nil
	}
	if err != nil {
		return audio.Buffer{}, err
	}
	if format.Codec != "pcm" {
		return audio.Buffer{}, errors.New("unsupported codec: " + format.Codec)
	}
	if len(chunk.Data) == 0 {
		return audio.Buffer{}, errors.New("empty payload")
	}
	samples, err := audio.DecodePCM16(chunk.Data)
	if err != nil {
		return audio.Buffer{}, err
	}
	return audio.Buffer{Samples: samples, SampleRate: format.SampleRate}, nil
}

// OnTurnBoundary marks the next chunk as the first of a new turn and
// lets the current turn go idle once its audio has played out.
func (s *Scheduler) OnTurnBoundary() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.firstChunk = true
	s.epoch++
	s.mu.Unlock()

	s.trigger()
}

// Speaking reports whether a turn is being played
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Stats returns a snapshot of scheduler state
func (s *Scheduler) Stats() Stats {
	now := s.sink.CurrentTime()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.Queued = s.queue.Len()
	st.Cursor = s.cursor
	st.Speaking = s.active
	if s.active && s.cursor > now {
		st.Ahead = s.cursor - now
	}
	return st
}

// Close discards queued audio and cancels the pending poll. Audio already
// handed to the sink is not recalled.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.queue.Clear()
	if s.poll != nil {
		s.poll.Stop()
		s.poll = nil
	}
}

// trigger starts a scheduling pass unless one is already running.
// A trigger during a pass is a no-op; the running pass drains new chunks.
func (s *Scheduler) trigger() {
	s.mu.Lock()
	if s.scheduling || s.closed {
		s.mu.Unlock()
		return
	}
	s.scheduling = true
	s.mu.Unlock()

	s.pass()
}

// pass drains the queue onto the sink, then polls for idle
func (s *Scheduler) pass() {
	var events []func()
	resumed := false

	s.mu.Lock()
	for !s.closed {
		buf, ok := s.queue.Peek()
		if !ok {
			break
		}
		first, epoch := s.firstChunk, s.epoch
		cursor := s.cursor
		s.mu.Unlock()

		now := s.sink.CurrentTime()
		underrun := false
		if first {
			cursor = max(cursor, now+s.opts.StartDelay)
		} else if cursor < now {
			cursor = now + s.opts.UnderrunDelay
			underrun = true
		}
		start := max(now, cursor)
		faded := ApplyFade(buf, s.opts.Fade)

		err := s.sink.Schedule(faded, start)
		if errors.Is(err, output.ErrClockSuspended) && !resumed {
			resumed = true
			if rerr := s.sink.Resume(); rerr != nil {
				s.logger.Warn("audio clock resume failed", "error", rerr)
			} else {
				s.logger.Info("audio clock resumed")
			}
			s.mu.Lock()
			continue
		}

		s.mu.Lock()
		if errors.Is(err, output.ErrClockSuspended) {
			// Keep the chunk and look again after the poll interval
			s.armPoll(s.opts.MinPoll)
			s.scheduling = false
			s.mu.Unlock()
			runEvents(events)
			return
		}

		s.queue.Pop()
		if err != nil {
			s.logger.Warn("failed to schedule buffer", "error", err)
			continue
		}

		if underrun {
			s.stats.Underruns++
			s.logger.Debug("playback underrun", "behind", now-s.cursor)
			events = append(events, s.opts.Recorder.Underrun)
		}
		if first && s.epoch == epoch {
			s.firstChunk = false
		}
		s.cursor = start + faded.Duration()
		s.stats.Scheduled++
		ahead := s.cursor - now
		events = append(events, func() { s.opts.Recorder.ChunkScheduled(ahead) })

		if !s.active {
			s.active = true
			s.stats.Turns++
			events = append(events, s.opts.Recorder.TurnStarted, s.notify(true))
		}
	}

	s.scheduling = false
	if !s.closed && s.active {
		now := s.sink.CurrentTime()
		if now >= s.cursor {
			// Queue empty and the clock has passed the cursor
			s.active = false
			events = append(events, s.opts.Recorder.TurnEnded, s.notify(false))
		} else {
			s.armPoll(max(s.cursor-now, s.opts.MinPoll))
		}
	}
	s.mu.Unlock()

	runEvents(events)
}

// armPoll replaces any pending poll. Caller holds s.mu.
func (s *Scheduler) armPoll(d time.Duration) {
	if s.poll != nil {
		s.poll.Stop()
	}
	s.poll = s.opts.AfterFunc(d, s.trigger)
}

func (s *Scheduler) notify(speaking bool) func() {
	return func() {
		if s.opts.OnSpeaking != nil {
			s.opts.OnSpeaking(speaking)
		}
	}
}

func runEvents(events []func()) {
	for _, ev := range events {
		ev()
	}
}
