// Package platform wraps the pieces of the device the bootstrap logic
// depends on but does not own: the recorded reset cause, the reboot
// primitive, and the bulk wipe of the firmware data directory.
package platform

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"outpost-firmware/pkg/globals"
)

// ResetCause classifies why the current boot happened.
type ResetCause int

const (
	// CauseOther covers software resets, watchdogs and anything the
	// boot stage could not attribute. It never counts against the
	// boot counter.
	CauseOther ResetCause = iota
	// CausePowerOnOrButton is a power cycle or a button-triggered reset.
	CausePowerOnOrButton
)

func (c ResetCause) String() string {
	if c == CausePowerOnOrButton {
		return "power-on/button"
	}
	return "other"
}

type Platform struct {
	causePath string
	dataDir   string
}

func New() *Platform {
	return &Platform{causePath: globals.ResetCausePath, dataDir: globals.FirmwareDataDir}
}

// NewAt builds a platform rooted at explicit paths. Used in tests.
func NewAt(causePath, dataDir string) *Platform {
	return &Platform{causePath: causePath, dataDir: dataDir}
}

// ResetCause reads the cause code the boot stage recorded for this boot.
// A missing or malformed file reads as CauseOther: without evidence of a
// power cycle the boot must not count against the recovery escalation.
func (p *Platform) ResetCause() ResetCause {
	data, err := os.ReadFile(p.causePath)
	if err != nil {
		return CauseOther
	}

	code, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return CauseOther
	}

	switch code {
	case globals.ResetCodePowerOn, globals.ResetCodeButton:
		return CausePowerOnOrButton
	default:
		return CauseOther
	}
}

// Restart syncs filesystems and reboots the device. It never returns;
// callers must have persisted everything they care about first.
func (p *Platform) Restart() {
	log.Println("Restarting device")
	syscall.Sync()

	if err := exec.Command("reboot").Run(); err != nil {
		log.Printf("CRITICAL: reboot command failed: %v", err)
	}

	// The reboot is asynchronous; hold the process here so no further
	// state changes race the shutdown.
	for {
		time.Sleep(time.Hour)
	}
}

// FormatData irreversibly wipes the firmware data directory: config,
// logs and counters are all gone after this. Only the forced factory
// reset path uses it.
func (p *Platform) FormatData() error {
	entries, err := os.ReadDir(p.dataDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	for _, entry := range entries {
		target := filepath.Join(p.dataDir, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("failed to wipe %s: %w", target, err)
		}
	}

	syscall.Sync()
	return nil
}
