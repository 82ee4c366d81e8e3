// Package health collects host metrics for the guide heartbeat and keeps the
// fleet presence registry in Redis.
package health

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
)

// Thresholds above which a robot should not start a new route.
const (
	MaxTempCelsius = 75.0
	MaxRAMPercent  = 90.0
)

const defaultThermalZone = "/sys/class/thermal/thermal_zone0/temp"

// Snapshot is one sample of host metrics.
type Snapshot struct {
	CPUPercent  float64   `json:"cpu_percent"`
	RAMPercent  float64   `json:"ram_percent"`
	RAMUsedMB   int64     `json:"ram_used_mb"`
	RAMTotalMB  int64     `json:"ram_total_mb"`
	TempCelsius float64   `json:"temperature_c"` // 0 if unavailable
	CollectedAt time.Time `json:"collected_at"`
}

// IsHealthy reports whether the host is within temperature and memory limits.
func (s Snapshot) IsHealthy() bool {
	return s.TempCelsius <= MaxTempCelsius && s.RAMPercent <= MaxRAMPercent
}

// Collector gathers host metrics.
type Collector struct {
	cpuSample   time.Duration
	thermalZone string
}

// NewCollector creates a collector. cpuSample is the CPU measurement window;
// 0 compares against the previous call, which suits a periodic heartbeat.
func NewCollector(cpuSample time.Duration) *Collector {
	return &Collector{cpuSample: cpuSample, thermalZone: defaultThermalZone}
}

// Collect samples CPU, memory and temperature. Individual metrics that
// cannot be read are logged and left at zero.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	s := Snapshot{CollectedAt: time.Now().UTC()}

	cpuPercent, err := cpu.PercentWithContext(ctx, c.cpuSample, false)
	if err != nil {
		log.Printf("WARN: Failed to collect CPU metrics: %v", err)
	} else if len(cpuPercent) > 0 {
		s.CPUPercent = cpuPercent[0]
	}

	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		log.Printf("WARN: Failed to collect memory metrics: %v", err)
	} else {
		s.RAMPercent = vmem.UsedPercent
		s.RAMUsedMB = int64(vmem.Used / 1024 / 1024)
		s.RAMTotalMB = int64(vmem.Total / 1024 / 1024)
	}

	s.TempCelsius = c.temperature(ctx)
	return s
}

// temperature tries gopsutil sensors first, then the thermal zone file
// (Raspberry Pi). Returns 0 when neither works.
func (c *Collector) temperature(ctx context.Context) float64 {
	temps, err := sensors.TemperaturesWithContext(ctx)
	if err == nil {
		for _, t := range temps {
			key := strings.ToLower(t.SensorKey)
			if key == "cpu_thermal" || key == "cpu-thermal" ||
				strings.Contains(key, "coretemp") || strings.Contains(key, "k10temp") {
				return t.Temperature
			}
		}
	}

	return readThermalZone(c.thermalZone)
}

// readThermalZone parses a millidegree Celsius reading.
func readThermalZone(path string) float64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0
	}
	return milli / 1000.0
}
