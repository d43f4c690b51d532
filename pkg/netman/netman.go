// Package netman owns network provisioning: it puts the device into
// exactly one of client or access-point mode, hands out the setup
// secret, and keeps watching the link so drops recover and the boot
// counter clears on the first acquired address.
package netman

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// Mode is the network operation mode, set exactly once per Begin.
type Mode int

const (
	ModeUninitialized Mode = iota
	ModeClient
	ModeAccessPoint
)

func (m Mode) String() string {
	switch m {
	case ModeClient:
		return "client"
	case ModeAccessPoint:
		return "access-point"
	default:
		return "uninitialized"
	}
}

const defaultAPPrefix = "outpost-"

type Provisioner struct {
	mu        sync.Mutex
	driver    Driver
	mode      Mode
	apName    string
	connected bool
	observers []func(Event)
	stop      chan struct{}

	// clearCounter zeroes the persistent boot counter; wired to the
	// counter store by the bootstrap layer.
	clearCounter func() error

	hwMAC []byte
	swMAC []byte
}

func New(driver Driver, clearCounter func() error) *Provisioner {
	return &Provisioner{driver: driver, clearCounter: clearCounter}
}

// SetAPName overrides the generated access-point name. Must be called
// before Begin to take effect.
func (p *Provisioner) SetAPName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.apName = name
}

func (p *Provisioner) APName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.apName
}

// Subscribe registers an observer for link events. Observers run on the
// event goroutine and must not block.
func (p *Provisioner) Subscribe(fn func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

// Begin selects and enters the network mode. configured is compared
// case-insensitively against "true"; anything else opens the setup
// access point (except on wired links, which are always client). An
// apSecret shorter than the minimum is discarded and the access point
// starts open. The returned mode is cached for the life of the
// provisioner.
func (p *Provisioner) Begin(essid, password, configured, hostname, apSecret string) (Mode, error) {
	p.mu.Lock()

	if p.mode != ModeUninitialized {
		mode := p.mode
		p.mu.Unlock()
		return mode, fmt.Errorf("network already initialized in %s mode", mode)
	}

	if p.apName == "" {
		p.apName = defaultAPPrefix + p.hardwareMACLocked("")
	}

	client := strings.EqualFold(configured, "true") || !p.driver.SupportsAccessPoint()
	if client {
		p.mode = ModeClient
	} else {
		p.mode = ModeAccessPoint
	}
	apName := p.apName
	p.mu.Unlock()

	if client {
		log.Printf("Network is configured, connecting to '%s'", essid)
		p.startWatcher()
		if err := p.driver.Connect(essid, password, hostname); err != nil {
			// Not masked, but mode stays entered; the watcher and
			// IsConnected expose the real state.
			return ModeClient, fmt.Errorf("failed to start client connection: %w", err)
		}
		return ModeClient, nil
	}

	if apSecret != "" && len(apSecret) < MinimumSecretLength {
		log.Printf("Access point secret is shorter than %d characters, starting open network", MinimumSecretLength)
		apSecret = ""
	}

	if apSecret == "" {
		log.Printf("Network is NOT configured, starting open access point '%s'", apName)
	} else {
		log.Printf("Network is NOT configured, starting protected access point '%s'", apName)
	}

	if err := p.driver.StartAccessPoint(apName, apSecret); err != nil {
		return ModeAccessPoint, fmt.Errorf("failed to start access point: %w", err)
	}
	return ModeAccessPoint, nil
}

// startWatcher pumps driver link events into HandleLinkEvent.
func (p *Provisioner) startWatcher() {
	p.mu.Lock()
	if p.stop != nil {
		p.mu.Unlock()
		return
	}
	p.stop = make(chan struct{})
	stop := p.stop
	p.mu.Unlock()

	events := make(chan Event, 8)
	p.driver.Watch(stop, events)
	go func() {
		for ev := range events {
			p.HandleLinkEvent(ev)
		}
	}()
}

// Close stops the link watcher.
func (p *Provisioner) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

// OperationMode returns the mode entered by Begin.
func (p *Provisioner) OperationMode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// IsConnected reports whether the last observed link state was up.
func (p *Provisioner) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// LinkUp queries the driver for the live link state.
func (p *Provisioner) LinkUp() bool {
	return p.driver.IsConnected()
}

func (p *Provisioner) LocalIP() string {
	return p.driver.LocalIP()
}

func (p *Provisioner) AccessPointIP() string {
	return p.driver.AccessPointIP()
}

// Scan lists nearby networks, when the driver can.
func (p *Provisioner) Scan() ([]Network, error) {
	return p.driver.Scan()
}

// HandleLinkEvent is the single entry point for link-state transitions
// from the underlying stack. It is safe to call at any time after Begin
// and must not block: reconnects are fired on their own goroutine.
func (p *Provisioner) HandleLinkEvent(ev Event) {
	p.mu.Lock()
	mode := p.mode
	switch ev {
	case EventAddressAcquired:
		p.connected = true
	case EventDisconnected:
		p.connected = false
	}
	observers := append([]func(Event){}, p.observers...)
	p.mu.Unlock()

	if mode == ModeClient {
		switch ev {
		case EventAddressAcquired:
			log.Printf("Got network address %s", p.driver.LocalIP())
			if p.clearCounter != nil {
				if err := p.clearCounter(); err != nil {
					log.Printf("CRITICAL: failed to clear boot counter: %v", err)
				}
			}
		case EventDisconnected:
			log.Println("Lost network connection, reconnecting")
			go func() {
				if err := p.driver.Reconnect(); err != nil {
					log.Printf("Reconnect attempt failed: %v", err)
				}
			}()
		}
	}

	for _, fn := range observers {
		fn(ev)
	}
}

// HardwareMACAddress returns the factory MAC as lowercase hex pairs
// joined by delimiter. The value is read once and cached for the run.
func (p *Provisioner) HardwareMACAddress(delimiter string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hardwareMACLocked(delimiter)
}

func (p *Provisioner) hardwareMACLocked(delimiter string) string {
	if p.hwMAC == nil {
		mac, err := p.driver.HardwareMAC()
		if err != nil {
			log.Printf("Failed to read hardware MAC: %v", err)
			return ""
		}
		p.hwMAC = mac
	}
	return FormatMAC(p.hwMAC, delimiter)
}

// SoftwareMACAddress returns the MAC currently assigned to the
// interface, formatted like HardwareMACAddress.
func (p *Provisioner) SoftwareMACAddress(delimiter string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.swMAC == nil {
		mac, err := p.driver.SoftwareMAC()
		if err != nil {
			log.Printf("Failed to read software MAC: %v", err)
			return ""
		}
		p.swMAC = mac
	}
	return FormatMAC(p.swMAC, delimiter)
}
