/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// isProcessAlive reports whether the PID refers to a live process.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix FindProcess always succeeds, so probe with signal 0.
	if runtime.GOOS != "windows" {
		return process.Signal(syscall.Signal(0)) == nil
	}

	return checkProcessWindows(pid)
}

func checkProcessWindows(pid int) bool {
	cmd := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/NH")
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(output), strconv.Itoa(pid))
}

// processMemory returns the resident set size of pid in bytes, or 0 when it
// cannot be determined.
func processMemory(pid int) int64 {
	switch runtime.GOOS {
	case "linux":
		return processMemoryLinux(pid)
	case "darwin":
		return processMemoryDarwin(pid)
	case "windows":
		return processMemoryWindows(pid)
	}
	return 0
}

func processMemoryLinux(pid int) int64 {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pid))
	if err != nil {
		return 0
	}

	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0
	}

	// statm reports pages; RSS is the second field.
	rss, _ := strconv.ParseInt(fields[1], 10, 64)
	return rss * int64(os.Getpagesize())
}

func processMemoryDarwin(pid int) int64 {
	cmd := exec.Command("ps", "-o", "rss=", "-p", strconv.Itoa(pid))
	output, err := cmd.Output()
	if err != nil {
		return 0
	}

	rss, _ := strconv.ParseInt(strings.TrimSpace(string(output)), 10, 64)
	return rss * 1024
}

func processMemoryWindows(pid int) int64 {
	cmd := exec.Command("wmic", "process", "where", fmt.Sprintf("ProcessId=%d", pid), "get", "WorkingSetSize", "/value")
	output, err := cmd.Output()
	if err != nil {
		return 0
	}

	for _, line := range strings.Split(string(output), "\n") {
		if strings.HasPrefix(line, "WorkingSetSize=") {
			mem, _ := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "WorkingSetSize=")), 10, 64)
			return mem
		}
	}
	return 0
}

// processCPU returns a best-effort CPU percentage for pid. On platforms
// where ps is available this samples the kernel's running average.
func processCPU(pid int) float64 {
	if runtime.GOOS == "windows" {
		return 0
	}

	cmd := exec.Command("ps", "-o", "pcpu=", "-p", strconv.Itoa(pid))
	output, err := cmd.Output()
	if err != nil {
		return 0
	}

	cpu, _ := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	return cpu
}
