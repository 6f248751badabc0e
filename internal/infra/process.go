package infra

import (
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"flowengine/internal/domain"
)

// GopsProcessManager implements domain.ProcessManager with gopsutil.
type GopsProcessManager struct{}

func NewGopsProcessManager() *GopsProcessManager {
	return &GopsProcessManager{}
}

// FindByName returns the PIDs of processes whose name contains the given
// string (case-insensitive).
func (m *GopsProcessManager) FindByName(name string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	needle := strings.ToLower(name)
	var pids []int
	for _, p := range procs {
		pname, err := p.Name()
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(pname), needle) {
			pids = append(pids, int(p.Pid))
		}
	}
	return pids, nil
}

// IsRunning reports whether the PID refers to a live process.
func (m *GopsProcessManager) IsRunning(pid int) bool {
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}

func (m *GopsProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

var _ domain.ProcessManager = (*GopsProcessManager)(nil)
