// Package avatar wraps the avatar platform's HTTP session API and the
// per-session WebSocket speech API.
package avatar

// Speech event types accepted on the session speech socket.
const (
	EventSpeak     = "agent.speak"     // one base64 PCM chunk of an utterance
	EventSpeakEnd  = "agent.speak_end" // closes the utterance
	EventInterrupt = "agent.interrupt" // cancels avatar playback mid-utterance
)

// SpeechEvent is the JSON envelope sent over the speech socket. Audio is
// base64-encoded 16-bit little-endian PCM and is only set for agent.speak.
type SpeechEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Audio   string `json:"audio,omitempty"`
}

// Session describes an avatar session created through the HTTP API. The
// platform issues the room credentials; the bridge only consumes them.
type Session struct {
	SessionID        string `json:"session_id"`
	RoomURL          string `json:"url"`
	RoomAccessToken  string `json:"access_token"`
	RealtimeEndpoint string `json:"realtime_endpoint"`
}

// apiResponse is the generic envelope the avatar HTTP API wraps every
// payload in.
type apiResponse struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Data    *Session `json:"data,omitempty"`
}

// newSessionRequest is the payload for creating a streaming session.
type newSessionRequest struct {
	AvatarID string `json:"avatar_id"`
	Quality  string `json:"quality,omitempty"`
	Version  string `json:"version,omitempty"`
}

// sessionRequest addresses an existing session.
type sessionRequest struct {
	SessionID string `json:"session_id"`
}
