// Package signaling defines the §6.1 wire event grammar shared by the
// Control Plane (manager<->mixer) and the Interconnect Session's prior
// signaling socket, plus a gorilla/websocket-backed duplex transport.
package signaling

import "encoding/json"

// Event is the generic envelope every signaling message uses (§6.1):
//
//	{ "event": <tag>, "uuid": <request-uuid>,
//	  "parameter": {...} | "response": {...} | "error": {...} }
type Event struct {
	Event     string          `json:"event"`
	UUID      string          `json:"uuid"`
	Parameter json.RawMessage `json:"parameter,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     *WireError      `json:"error,omitempty"`
}

// WireError is the §6.1 error object; its absence, or Code==0, means success.
type WireError struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

// Succeeded reports whether this Event's error object signals success.
func (e *Event) Succeeded() bool {
	return e.Error == nil || e.Error.Code == 0
}

// Event type tags (§4.3.3, §6.1).
const (
	EventRegister      = "register"
	EventConfigure     = "configure"
	EventAcquire       = "acquire"
	EventForward       = "forward"
	EventRelease       = "release"
	EventJoin          = "join"
	EventLeave         = "leave"
	EventVolume        = "volume"
	EventState         = "state"
	EventShutdown      = "shutdown"
	EventConnectMedia  = "connect_media"
	EventConnectLoops  = "connect_loops"
	EventMixerLost     = "mixer_lost"
)

// Wire error code names (§6.1).
const (
	ErrCodeParameterError  = 1
	ErrCodeAuthFailure     = 2
	ErrCodeNoResource      = 3
	ErrCodeProcessingError = 4
	ErrCodeSessionUnknown  = 5
	ErrCodeCodecMismatch   = 6
)

// RegisterMixerParam is the `register` request body for a mixer worker
// connecting to the manager.
type RegisterMixerParam struct {
	UUID string `json:"uuid"`
	Type string `json:"type"`
}

// RegisterInterconnectParam is the `register` request body for an
// interconnect client authenticating to a server fabric.
type RegisterInterconnectParam struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// AcquireParam is the `acquire` request body.
type AcquireParam struct {
	Name        string `json:"name"`
	Socket      string `json:"socket"`
	SSRC        uint32 `json:"ssrc"`
	PayloadType uint8  `json:"payload_type"`
}

// ForwardParam is the `forward` request body.
type ForwardParam struct {
	Name        string `json:"name"`
	Socket      string `json:"socket"`
	SSRC        uint32 `json:"ssrc"`
	PayloadType uint8  `json:"payload_type"`
}

// ReleaseParam is the `release` request body.
type ReleaseParam struct {
	Name string `json:"name"`
}

// SocketSpec describes a host/port/transport tuple used in `join`.
type SocketSpec struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Type string `json:"type"`
}

// JoinParam is the `join` request body.
type JoinParam struct {
	Name   string     `json:"name"`
	Socket SocketSpec `json:"socket"`
	Volume int        `json:"volume"`
}

// LeaveParam is the `leave` request body.
type LeaveParam struct {
	Loop string `json:"loop"`
}

// VolumeParam is the `volume` request body.
type VolumeParam struct {
	Loop   string `json:"loop"`
	Volume int    `json:"volume"`
}

// ConnectMediaParam is the `connect_media` request/response body.
type ConnectMediaParam struct {
	Name        string `json:"name"`
	Codec       string `json:"codec"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// LoopSSRC pairs a loop name with an SSRC, used in `connect_loops`.
type LoopSSRC struct {
	Name string `json:"name"`
	SSRC uint32 `json:"ssrc"`
}

// ConnectLoopsParam is the `connect_loops` request/response body.
type ConnectLoopsParam struct {
	Loops []LoopSSRC `json:"loops"`
}

// MixerLostNotification is the internal notification surfaced when the
// registry reclaims a slot that held a bound session (§4.3.1, §4.3.4).
type MixerLostNotification struct {
	SessionID string `json:"session_id"`
}

// ForwardSpec is the output target a mixer is told to use (§6.1 `acquire`/
// `forward`); the Control Plane's AcquireMixer flattens it into
// AcquireParam's socket ("host:port"), ssrc and payload_type fields.
type ForwardSpec struct {
	Host        string
	Port        int
	SSRC        uint32
	PayloadType uint8
}
