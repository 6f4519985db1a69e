// ABOUTME: Conversation transcript package
// ABOUTME: Mirrors agent text and transcription fields for display
// Package transcript keeps the running conversation text for display.
package transcript
