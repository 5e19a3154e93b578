package models

import "time"

// HostResources is a point-in-time snapshot of the console host.
type HostResources struct {
	CPUPercent      float64 `json:"cpu_percent"`
	CPUCount        int     `json:"cpu_count"`
	MemoryTotal     uint64  `json:"memory_total"`
	MemoryAvailable uint64  `json:"memory_available"`
	MemoryPercent   float64 `json:"memory_percent"`
	DiskPath        string  `json:"disk_path"`
	DiskTotal       uint64  `json:"disk_total"`
	DiskFree        uint64  `json:"disk_free"`
	DiskPercent     float64 `json:"disk_percent"`
	Goroutines      int     `json:"goroutines"`
}

// UpstreamStatus captures reachability of the backend API.
type UpstreamStatus struct {
	URL        string        `json:"url"`
	Reachable  bool          `json:"reachable"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency"`
	Error      string        `json:"error,omitempty"`
}

// ResourceSnapshot is the payload of the resource monitor screen.
type ResourceSnapshot struct {
	Host       HostResources  `json:"host"`
	Upstream   UpstreamStatus `json:"upstream"`
	Cache      CacheStats     `json:"cache"`
	Warnings   []string       `json:"warnings,omitempty"`
	ObservedAt time.Time      `json:"observed_at"`
}

// CacheStats summarises query cache effectiveness.
type CacheStats struct {
	Entries  int     `json:"entries"`
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	HitRatio float64 `json:"hit_ratio"`
}
