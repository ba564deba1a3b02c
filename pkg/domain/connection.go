package domain

import "fmt"

// Transport identifies which path carries the backend connection.
type Transport string

const (
	TransportNone   Transport = ""
	TransportDirect Transport = "direct"
	TransportRelay  Transport = "relay"
)

// Phase is the coarse connection lifecycle phase.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
)

// ConnectionState is the state owned by the Connection Manager.
// Transport is TransportNone only while Disconnected.
type ConnectionState struct {
	Phase     Phase     `json:"phase"`
	Transport Transport `json:"transport,omitempty"`
	Port      int       `json:"port,omitempty"`
}

// Disconnected returns the initial state.
func Disconnected() ConnectionState {
	return ConnectionState{Phase: PhaseDisconnected}
}

// Connected reports whether frames can flow to the backend.
func (s ConnectionState) Connected() bool {
	return s.Phase == PhaseConnected
}

// Live reports whether a transport is connecting or connected.
func (s ConnectionState) Live() bool {
	return s.Phase == PhaseConnecting || s.Phase == PhaseConnected
}

func (s ConnectionState) String() string {
	if s.Phase == PhaseDisconnected || s.Transport == TransportNone {
		return string(PhaseDisconnected)
	}
	return fmt.Sprintf("%s(%s)", s.Phase, s.Transport)
}

// StatusLabel is the indicator text shown by surfaces.
func (s ConnectionState) StatusLabel() string {
	if s.Connected() {
		return "Active"
	}
	return "Offline"
}
