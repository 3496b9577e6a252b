package model

import "time"

type StepStatus string

const (
	StepStatusSuccess    StepStatus = "success"
	StepStatusFailed     StepStatus = "failed"
	StepStatusSkipped    StepStatus = "skipped"
	StepStatusInProgress StepStatus = "in_progress"
)

type StepResult struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	Duration time.Duration `json:"duration"`
	Message  string        `json:"message,omitempty"`
}

// BenchmarkResult is the outcome of one provisioning and benchmark run. It is
// only held in memory and printed; nothing persists it.
type BenchmarkResult struct {
	Status        string       `json:"status"`
	StartedAt     time.Time    `json:"started_at"`
	EndedAt       time.Time    `json:"ended_at"`
	ServerVersion string       `json:"server_version"`
	LoaderVersion string       `json:"loader_version"`
	Runtime       string       `json:"runtime"`
	MemoryGB      int          `json:"memory_gb"`
	Score         float64      `json:"score"`
	Samples       uint64       `json:"samples"`
	Steps         []StepResult `json:"steps"`
	Error         string       `json:"error,omitempty"`
}

// PluginStatus is one catalog entry as the plugins command reports it.
type PluginStatus struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Required   bool   `json:"required"`
	Enabled    bool   `json:"enabled"`
	Installed  bool   `json:"installed"`
	InstallURL string `json:"install_url"`
}
