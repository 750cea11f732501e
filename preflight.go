package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// dirCheck is the result of probing one directory the pipeline writes to.
type dirCheck struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// checkDirectory verifies path is an existing directory the current user can
// read, write, and traverse.
func checkDirectory(name, path string) dirCheck {
	c := dirCheck{Name: name, Path: path}

	if path == "" {
		c.Detail = "not configured"
		return c
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.Detail = "does not exist"
			return c
		}

		c.Detail = fmt.Sprintf("stat: %v", err)

		return c
	}

	if !info.IsDir() {
		c.Detail = "is not a directory"
		return c
	}

	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		c.Detail = fmt.Sprintf("insufficient permissions: %v", err)
		return c
	}

	c.Passed = true
	c.Detail = "read/write ok"

	return c
}

// pipelineDirectories probes the monitored, uploaded, and state directories.
func pipelineDirectories(cc *CLIContext) []dirCheck {
	p := cc.Cfg.Paths

	return []dirCheck{
		checkDirectory("monitor", p.Monitor),
		checkDirectory("uploaded", p.Uploaded),
		checkDirectory("state", p.StateDir),
	}
}
