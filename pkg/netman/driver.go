package netman

import "errors"

// ErrAccessPointUnsupported is returned by drivers that have no
// access-point fallback (wired links).
var ErrAccessPointUnsupported = errors.New("access point mode not supported on this link")

// ErrScanUnsupported is returned by drivers that cannot enumerate
// nearby networks.
var ErrScanUnsupported = errors.New("network scan not supported on this link")

// Network is one scan result, shaped for the setup API.
type Network struct {
	SSID    string `json:"ssid"`
	Signal  int    `json:"signal"` // 0-100
	Secured bool   `json:"secured"`
}

// Event is a link-state transition reported by a driver's watcher.
type Event int

const (
	// EventAddressAcquired fires when the link has an address and is
	// usable. In client mode this clears the boot counter.
	EventAddressAcquired Event = iota
	// EventDisconnected fires when the link drops. In client mode a
	// reconnect is kicked off.
	EventDisconnected
)

func (e Event) String() string {
	if e == EventAddressAcquired {
		return "address-acquired"
	}
	return "disconnected"
}

// Driver abstracts one way of getting the device onto a network. The
// wifi and ethernet variants are selected at construction time; tests
// use a fake.
type Driver interface {
	// Connect joins the configured network. The wifi driver returns
	// as soon as the attempt is underway; the ethernet driver blocks
	// until link-up is observed.
	Connect(essid, password, hostname string) error
	// StartAccessPoint opens a local network for setup. An empty
	// secret means an open (unencrypted) network.
	StartAccessPoint(name, secret string) error
	// SupportsAccessPoint reports whether StartAccessPoint can work
	// at all for this link type.
	SupportsAccessPoint() bool
	// Reconnect retries the client connection after a drop.
	Reconnect() error
	// IsConnected reports the live link state.
	IsConnected() bool
	// Watch emits link-state transitions on events until stop closes.
	Watch(stop <-chan struct{}, events chan<- Event)

	LocalIP() string
	AccessPointIP() string
	HardwareMAC() ([]byte, error)
	SoftwareMAC() ([]byte, error)

	Scan() ([]Network, error)
}
