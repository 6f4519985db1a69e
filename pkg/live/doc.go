// ABOUTME: Duplex channel to a realtime voice agent
// ABOUTME: Event-sink interfaces, message model and the Gemini Live websocket client
// Package live carries audio and text between the local session and a
// realtime voice agent.
//
// Inbound traffic is delivered to a Handler (open, message, error, close).
// Outbound traffic goes through a Sender, which reports ErrChannelClosed
// when there is no active connection so callers can drop the payload.
//
// Example:
//
//	client := live.NewGeminiClient(live.Config{APIKey: key, Model: model}, handler)
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close()
//	err = client.SendMedia(ctx, live.Media{MIMEType: "audio/pcm;rate=16000", Data: b64})
package live
