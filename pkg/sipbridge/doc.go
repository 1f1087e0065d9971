// Package sipbridge bridges live telephone calls to a streaming
// conversational-AI backend so the AI can hear the caller and speak back
// in near real time.
//
// # Overview
//
// The bridge sits between two external collaborators: a telephony stack
// that answers calls and exposes file-backed recorder/player media, and
// a realtime AI backend speaking an incremental WebSocket event
// protocol. The package provides:
//   - Call session registry supporting concurrent calls
//   - Lifecycle controller ordering greeting, recording and AI attach
//   - Persistent realtime AI session client with normalized events
//   - Capture poller streaming newly recorded caller audio through a
//     peak-amplitude voice activity detector
//   - Response assembler turning audio deltas into playable WAV files
//   - WAV framing helpers and tone synthesis
//
// # Quick Start
//
// Wire the controller to your telephony runtime's events:
//
//	config := sipbridge.NewBridgeConfig()
//	if issues := config.Validate(); len(issues) > 0 {
//		log.Fatal(issues)
//	}
//
//	registry := sipbridge.NewSessionRegistry(nil)
//	controller := sipbridge.NewCallController(registry, mediaFactory, config, nil)
//
//	call.OnState(func(state string) { controller.OnCallState(callID, state) })
//	call.OnMedia(func(streams []sipbridge.MediaStream) { controller.OnCallMedia(callID, streams) })
//	call.OnDTMF(func(digit string) { controller.OnDTMF(callID, digit) })
//
// On shutdown, tear everything down before stopping the telephony stack:
//
//	registry.TeardownAll()
//
// # Flow
//
// When call media becomes available the greeting sequence plays (the
// connection beep, then the cached or AI-generated greeting) while the
// recorder attaches. Once the greeting completes the AI session connects
// and the capture poller starts. AI audio deltas are assembled into WAV
// turns and played back. Call disconnect tears down poller, recorder,
// client and players in order, exactly once.
//
// # Error Handling
//
// Per-call errors never escape their async step: a failed AI connection
// degrades the call (silence instead of AI speech) rather than dropping
// it, resource failures are isolated per resource, and only missing
// startup configuration is fatal.
//
// # Dependencies
//
//   - github.com/gorilla/websocket: realtime AI transport
//   - github.com/rs/zerolog: structured logging
//   - github.com/spf13/cobra: CLI framework
//   - github.com/golang-jwt/jwt/v4: gateway token auth
//   - github.com/joho/godotenv: environment variables
//   - github.com/google/uuid: transient file naming
package sipbridge
