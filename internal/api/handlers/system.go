package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"sentinel-worker-go/internal/logging"
)

// SystemHandler reports host resource usage
type SystemHandler struct {
	WorkerID string

	// storageRoot returns the recordings directory whose filesystem is reported
	storageRoot func() string
}

func NewSystemHandler(workerID string, storageRoot func() string) *SystemHandler {
	return &SystemHandler{
		WorkerID:    workerID,
		storageRoot: storageRoot,
	}
}

// DiskStats is the usage of the filesystem holding the recordings
type DiskStats struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

type SystemStats struct {
	WorkerID      string     `json:"worker_id"`
	CPUPercent    float64    `json:"cpu_percent"`
	CPUCores      int        `json:"cpu_cores"`
	MemoryPercent float64    `json:"memory_percent"`
	MemoryUsedMB  uint64     `json:"memory_used_mb"`
	MemoryTotalMB uint64     `json:"memory_total_mb"`
	ProcessHeapMB uint64     `json:"process_heap_mb"`
	Goroutines    int        `json:"goroutines"`
	GoVersion     string     `json:"go_version"`
	Disk          *DiskStats `json:"disk,omitempty"`
	Timestamp     int64      `json:"timestamp"`
}

// @Summary Get system stats
// @Description Host CPU, memory and recordings disk usage
// @Tags system
// @Produce json
// @Success 200 {object} SystemStats
// @Router /system/stats [get]
func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := SystemStats{
		WorkerID:      h.WorkerID,
		CPUCores:      runtime.NumCPU(),
		ProcessHeapMB: m.Alloc / 1024 / 1024,
		Goroutines:    runtime.NumGoroutine(),
		GoVersion:     runtime.Version(),
		Timestamp:     time.Now().Unix(),
	}

	ctx := c.Request.Context()
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	} else if err != nil {
		logging.Debug(c).Err(err).Msg("CPU stats unavailable")
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryPercent = vm.UsedPercent
		stats.MemoryUsedMB = vm.Used / 1024 / 1024
		stats.MemoryTotalMB = vm.Total / 1024 / 1024
	} else {
		logging.Debug(c).Err(err).Msg("Memory stats unavailable")
	}

	if h.storageRoot != nil {
		root := h.storageRoot()
		if usage, err := disk.UsageWithContext(ctx, root); err == nil {
			stats.Disk = &DiskStats{
				Path:        root,
				TotalBytes:  usage.Total,
				UsedBytes:   usage.Used,
				FreeBytes:   usage.Free,
				UsedPercent: usage.UsedPercent,
			}
		} else {
			logging.Debug(c).Err(err).Str("path", root).Msg("Disk stats unavailable")
		}
	}

	c.JSON(http.StatusOK, stats)
}
