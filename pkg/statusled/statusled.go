// Package statusled drives a single GPIO status LED that mirrors the
// provisioning state: slow blink while the setup access point is open,
// fast blink while connecting as a client, solid once an address is
// held. Devices without the LED (or without GPIO access) degrade to a
// no-op.
package statusled

import (
	"log"
	"sync"
	"time"

	"outpost-firmware/pkg/globals"
	"outpost-firmware/pkg/netman"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

type Pattern int

const (
	PatternOff Pattern = iota
	PatternSlowBlink
	PatternFastBlink
	PatternSolid
)

type LED struct {
	mu      sync.Mutex
	pin     gpio.PinIO
	pattern Pattern
	stop    chan struct{}
}

var instance *LED
var once sync.Once

func Init() {
	once.Do(func() {
		instance = &LED{}
		if globals.StatusLEDPin == "" {
			return
		}
		if _, err := host.Init(); err != nil {
			log.Printf("Status LED disabled, GPIO host init failed: %v", err)
			return
		}
		pin := gpioreg.ByName(globals.StatusLEDPin)
		if pin == nil {
			log.Printf("Status LED disabled, pin %s not found", globals.StatusLEDPin)
			return
		}
		instance.pin = pin
		instance.stop = make(chan struct{})
		go instance.run()
	})
}

func Get() *LED {
	if instance == nil {
		panic("statusled not initialized - call Init() first")
	}
	return instance
}

// SetPattern switches the blink pattern. Safe to call from the link
// event goroutine.
func (l *LED) SetPattern(p Pattern) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pattern = p
}

// ObserveMode sets the initial pattern for the mode Begin entered.
func (l *LED) ObserveMode(mode netman.Mode) {
	switch mode {
	case netman.ModeAccessPoint:
		l.SetPattern(PatternSlowBlink)
	case netman.ModeClient:
		l.SetPattern(PatternFastBlink)
	default:
		l.SetPattern(PatternOff)
	}
}

// ObserveEvent adjusts the pattern on link transitions. Registered as a
// provisioner observer; must not block.
func (l *LED) ObserveEvent(ev netman.Event) {
	switch ev {
	case netman.EventAddressAcquired:
		l.SetPattern(PatternSolid)
	case netman.EventDisconnected:
		l.SetPattern(PatternFastBlink)
	}
}

func (l *LED) run() {
	ticker := time.NewTicker(125 * time.Millisecond)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-l.stop:
			l.pin.Out(gpio.Low)
			return
		case <-ticker.C:
			tick++
			l.mu.Lock()
			pattern := l.pattern
			l.mu.Unlock()

			level := gpio.Low
			switch pattern {
			case PatternSolid:
				level = gpio.High
			case PatternFastBlink:
				if tick%2 == 0 {
					level = gpio.High
				}
			case PatternSlowBlink:
				if tick%8 < 4 {
					level = gpio.High
				}
			}
			l.pin.Out(level)
		}
	}
}
