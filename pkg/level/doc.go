// ABOUTME: Level/visualization sampler over the capture and playback taps
// ABOUTME: Picks the live stream per tick and decays when neither is live
// Package level produces a coarse frequency snapshot for display.
//
// Every Tick reads the playback tap while the agent is speaking, the
// microphone tap while listening, and otherwise decays the previous values
// geometrically toward zero. The sampler only reads; it never affects
// capture or scheduling.
package level
