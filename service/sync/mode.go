package sync

import (
	"fmt"

	"github.com/brojonat/moonportal/service/wallet"
)

// Mode is what the user is shown. It is always derived from the identity and the
// record phase, never set directly.
type Mode int

const (
	ModeDisconnected Mode = iota
	ModeConnectingWallet
	ModeAccountUnknown
	ModeUninitialized
	ModeInitializing
	ModeReady
	ModeFetchError
)

func (m Mode) String() string {
	switch m {
	case ModeDisconnected:
		return "Disconnected"
	case ModeConnectingWallet:
		return "ConnectingWallet"
	case ModeAccountUnknown:
		return "Connected/AccountUnknown"
	case ModeUninitialized:
		return "Connected/Uninitialized"
	case ModeInitializing:
		return "Connected/Initializing"
	case ModeReady:
		return "Connected/Ready"
	case ModeFetchError:
		return "Connected/FetchError"
	default:
		return "Unknown"
	}
}

// Connected reports whether the mode has an identity behind it.
func (m Mode) Connected() bool {
	return m >= ModeAccountUnknown
}

// MarshalText renders the mode by name in JSON.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses a mode name as produced by String.
func (m *Mode) UnmarshalText(text []byte) error {
	for candidate := ModeDisconnected; candidate <= ModeFetchError; candidate++ {
		if candidate.String() == string(text) {
			*m = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", text)
}

// recordPhase is the controller's knowledge of the remote record for the
// current identity.
type recordPhase int

const (
	phaseUnknown recordPhase = iota
	phaseUninitialized
	phaseInitializing
	phaseReady
	phaseFetchError
)

func deriveMode(identity wallet.Identity, connecting bool, phase recordPhase) Mode {
	if identity.IsZero() {
		if connecting {
			return ModeConnectingWallet
		}
		return ModeDisconnected
	}
	switch phase {
	case phaseUninitialized:
		return ModeUninitialized
	case phaseInitializing:
		return ModeInitializing
	case phaseReady:
		return ModeReady
	case phaseFetchError:
		return ModeFetchError
	default:
		return ModeAccountUnknown
	}
}

// View is the state handed to presenters after every transition.
type View struct {
	Mode         Mode            `json:"mode"`
	Identity     wallet.Identity `json:"identity,omitempty"`
	Entries      []string        `json:"entries"`
	Pending      int             `json:"pending"` // trailing entries not yet confirmed by a fetch
	Draft        string          `json:"draft"`
	LastError    ErrorKind       `json:"last_error,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Busy         bool            `json:"busy"`
}

// Confirmed returns the entries that came from the latest fetch.
func (v View) Confirmed() []string {
	return v.Entries[:len(v.Entries)-v.Pending]
}
