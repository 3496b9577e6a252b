package pipeline

import (
	"errors"
	"strings"
	"sync/atomic"
)

// ErrJobConsumed is returned when a Job is started a second time.
var ErrJobConsumed = errors.New("job already started")

// Job is one provisioning and benchmark request. It is consumed by the first
// Coordinator.Start.
type Job struct {
	ServerVersion string
	LoaderVersion string
	// Runtime is the distribution the server is launched under.
	Runtime string
	// AdditionalRuntimes are provisioned alongside Runtime.
	AdditionalRuntimes []string
	MemoryGB           int
	// Optional toggles optional catalog plugins by ID.
	Optional map[string]bool

	consumed atomic.Bool
}

func (j *Job) consume() error {
	if !j.consumed.CompareAndSwap(false, true) {
		return ErrJobConsumed
	}
	return nil
}

// runtimes lists Runtime first, then the additional ones, without repeats.
func (j *Job) runtimes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range append([]string{j.Runtime}, j.AdditionalRuntimes...) {
		key := strings.ToLower(strings.TrimSpace(r))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

func (j *Job) validate() error {
	var errs []error
	if strings.TrimSpace(j.ServerVersion) == "" {
		errs = append(errs, errors.New("server version is required"))
	}
	if strings.TrimSpace(j.LoaderVersion) == "" {
		errs = append(errs, errors.New("loader version is required"))
	}
	if strings.TrimSpace(j.Runtime) == "" {
		errs = append(errs, errors.New("runtime is required"))
	}
	if j.MemoryGB <= 0 {
		errs = append(errs, errors.New("memory must be at least 1 GB"))
	}
	return errors.Join(errs...)
}
