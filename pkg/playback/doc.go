// ABOUTME: Playback scheduler turning jittery agent audio into gapless output
// ABOUTME: Jitter buffer, playback cursor, turn state and edge fades
// Package playback schedules independently arriving audio chunks onto an
// audio clock so they play back to back without gaps or clicks.
//
// Each chunk is decoded on receipt and queued. A scheduling pass drains the
// queue, placing every buffer at the playback cursor and advancing the
// cursor by the buffer's duration. The first chunk of a turn is delayed by
// StartDelay to absorb initial jitter; a cursor that has fallen behind the
// clock restarts at now+UnderrunDelay. At most one pass runs at a time.
//
// Example:
//
//	s := playback.New(device, playback.Options{Decoder: decode.NewRegistry(24000)})
//	s.Enqueue(audio.Chunk{Data: pcm, MIMEType: "audio/pcm;rate=24000"})
//	s.OnTurnBoundary()
package playback
