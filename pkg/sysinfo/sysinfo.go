// Package sysinfo collects the small system snapshot shown in the
// startup banner and on the setup API status endpoint.
package sysinfo

import (
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

type Snapshot struct {
	Uptime       time.Duration `json:"uptime"`
	LoadAvg1     float64       `json:"loadAvg1"`
	MemUsedPct   float64       `json:"memUsedPercent"`
	CPUTempC     float64       `json:"cpuTempCelsius"`
	KernelArch   string        `json:"kernelArch"`
	PlatformName string        `json:"platform"`
}

// Collect gathers what it can and leaves the rest zeroed. Individual
// probe failures are not errors: a missing temperature sensor must not
// break the status endpoint.
func Collect() Snapshot {
	var snap Snapshot

	if uptime, err := host.Uptime(); err == nil {
		snap.Uptime = time.Duration(uptime) * time.Second
	}
	if avg, err := load.Avg(); err == nil {
		snap.LoadAvg1 = avg.Load1
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemUsedPct = vm.UsedPercent
	}
	if info, err := host.Info(); err == nil {
		snap.KernelArch = info.KernelArch
		snap.PlatformName = info.Platform
	}
	if temps, err := host.SensorsTemperatures(); err == nil {
		for _, t := range temps {
			if t.SensorKey == "cpu_thermal" || t.SensorKey == "coretemp" {
				snap.CPUTempC = t.Temperature
				break
			}
		}
	}

	return snap
}
