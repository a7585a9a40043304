package pipe

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nathanielparke/cannoli/internal/dataset"
	"github.com/nathanielparke/cannoli/internal/formats"
	"github.com/nathanielparke/cannoli/internal/staging"
	"github.com/nathanielparke/cannoli/pkg/records"
)

const driverPIDFileEnv = "CANNOLI_TEST_DRIVER_PIDFILE"

// TestDriverProcess is the body of the driver started by
// TestToolDiesWithDriver. It blocks until it is killed.
func TestDriverProcess(t *testing.T) {
	pidfile := os.Getenv(driverPIDFileEnv)
	if pidfile == "" {
		t.Skip("only runs as a child of TestToolDiesWithDriver")
	}
	cmd := build(t, direct("sh", "-c", "echo $$ >"+pidfile+"; exec sleep 30"))
	e := New[records.Feature, records.Feature](cmd, formats.BEDFormat{}, formats.BEDFormat{}, WithLogger(testLogger()))
	e.RunPartition(context.Background(), staging.Substitution{}, dataset.Partition[records.Feature]{})
}

func TestToolDiesWithDriver(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns processes")
	}
	pidfile := filepath.Join(t.TempDir(), "tool.pid")
	driver := exec.Command(os.Args[0], "-test.run=^TestDriverProcess$")
	driver.Env = append(os.Environ(), driverPIDFileEnv+"="+pidfile)
	if err := driver.Start(); err != nil {
		t.Fatalf("start driver: %v", err)
	}

	pid := waitForPID(t, pidfile)
	if !processAlive(pid) {
		t.Fatalf("tool %d not running before the driver was killed", pid)
	}
	if err := driver.Process.Kill(); err != nil {
		t.Fatal(err)
	}
	driver.Wait()

	deadline := time.Now().Add(5 * time.Second)
	for processAlive(pid) {
		if time.Now().After(deadline) {
			killPID(pid)
			t.Fatalf("tool %d outlived its killed driver", pid)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func waitForPID(t *testing.T, path string) int {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil {
			if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
				return pid
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("tool never wrote %s", path)
	return 0
}

// processAlive reports whether pid exists and is not a zombie.
func processAlive(pid int) bool {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	s := string(data)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return false
	}
	return s[i+2] != 'Z' && s[i+2] != 'X'
}

func killPID(pid int) {
	if p, err := os.FindProcess(pid); err == nil {
		p.Kill()
	}
}
