//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/magefile/mage/mg"
)

// command is one external tool invocation. Output is captured, and also
// streamed when stream is set or mage runs verbose.
type command struct {
	name   string
	args   []string
	dir    string
	stream bool
}

func tool(name string, args ...string) *command {
	return &command{name: name, args: args}
}

func (c *command) in(dir string) *command {
	c.dir = dir
	return c
}

func (c *command) streamed() *command {
	c.stream = true
	return c
}

func (c *command) run() (string, error) {
	line := strings.TrimSpace(c.name + " " + strings.Join(c.args, " "))
	fmt.Printf("> %s\n", line)

	cmd := exec.Command(c.name, c.args...)
	cmd.Dir = c.dir
	var out bytes.Buffer
	live := c.stream || mg.Verbose()
	if live {
		cmd.Stdout = io.MultiWriter(&out, os.Stdout)
		cmd.Stderr = io.MultiWriter(&out, os.Stderr)
	} else {
		cmd.Stdout = &out
		cmd.Stderr = &out
	}
	if err := cmd.Run(); err != nil {
		if !live {
			os.Stderr.Write(out.Bytes())
		}
		return "", fmt.Errorf("%s: %w", line, err)
	}
	return out.String(), nil
}

// upToDate reports whether out exists and is newer than src.
func upToDate(src, out string) bool {
	si, err := os.Stat(src)
	if err != nil {
		return false
	}
	oi, err := os.Stat(out)
	if err != nil {
		return false
	}
	return !oi.ModTime().Before(si.ModTime())
}
