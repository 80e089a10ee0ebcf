package preflight

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name    string
	Passed  bool
	Warning bool
	Detail  string
}

// lowSpaceThreshold is the free-space floor below which a warning is raised.
const lowSpaceThreshold = 1 << 30 // 1 GiB

// RunAll executes the output directory checks for a harvest run.
func RunAll(outputDir string) []Result {
	return []Result{
		CheckDirectoryAccess("Output directory", outputDir),
		CheckFreeSpace("Free space", outputDir),
	}
}

// Failed reports whether any check in results did not pass. Warnings do not
// count as failures.
func Failed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return true
		}
	}
	return false
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace reports the free space on the filesystem holding path.
// Running low is a warning, not a failure; combined text files grow slowly.
func CheckFreeSpace(name, path string) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < lowSpaceThreshold {
		return Result{
			Name:    name,
			Passed:  true,
			Warning: true,
			Detail:  fmt.Sprintf("%s free on %s (below %s)", humanize.IBytes(free), path, humanize.IBytes(lowSpaceThreshold)),
		}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s free", humanize.IBytes(free))}
}
