package reap

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Executor provides a consistent interface for executing child processes,
// abstracting away the privilege escalation (sudo) logic. Every external
// tool reap drives (git, makepkg, gpg, pacman, flatpak, apt) goes through
// one of the two global executors.
type Executor struct {
	Context         context.Context
	ShouldRunAsRoot bool // the command MUST be executed with root privileges
	Interactive     bool // the command may prompt the user
}

// NewExecutor returns an executor bound to ctx.
func NewExecutor(ctx context.Context) *Executor {
	return &Executor{Context: ctx}
}

// runInteractiveCommand executes a command attached to the TTY for
// interactive prompts. No process-group isolation; suitable for `sudo -v`.
func runInteractiveCommand(ctx context.Context, name string, arg ...string) error {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// ensureSudo checks the sudo ticket and re-prompts if it has expired.
func (e *Executor) ensureSudo() error {
	if os.Geteuid() == 0 || !e.ShouldRunAsRoot {
		return nil
	}
	checkCmd := exec.CommandContext(e.Context, "sudo", "-nv")
	checkCmd.Stdout = io.Discard
	checkCmd.Stderr = io.Discard
	if err := checkCmd.Run(); err == nil {
		return nil
	}

	colArrow.Print("-> ")
	colSuccess.Println("Sudo ticket has expired. Re-authenticating")
	if err := runInteractiveCommand(e.Context, "sudo", "-v"); err != nil {
		return fmt.Errorf("sudo re-authentication failed: %w", err)
	}
	return nil
}

// Run executes cmd, elevating via sudo -E only when needed. The child is
// isolated in its own process group so cancellation can reap the whole
// tree.
func (e *Executor) Run(cmd *exec.Cmd) error {
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := e.ensureSudo(); err != nil {
		return err
	}

	var finalCmd *exec.Cmd
	if e.ShouldRunAsRoot && os.Geteuid() != 0 {
		args := append([]string{"-E", cmd.Path}, cmd.Args[1:]...)
		finalCmd = exec.CommandContext(e.Context, "sudo", args...)
	} else {
		finalCmd = exec.CommandContext(e.Context, cmd.Path, cmd.Args[1:]...)
	}

	if len(cmd.Env) > 0 {
		finalCmd.Env = cmd.Env
	} else {
		finalCmd.Env = os.Environ()
	}
	finalCmd.Dir = cmd.Dir
	finalCmd.Stdin = cmd.Stdin
	finalCmd.Stdout = cmd.Stdout
	finalCmd.Stderr = cmd.Stderr
	finalCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := finalCmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	pgid := finalCmd.Process.Pid

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-e.Context.Done():
			syscall.Kill(-pgid, syscall.SIGKILL)
		case <-done:
		}
	}()

	if waitErr := finalCmd.Wait(); waitErr != nil {
		if e.Context.Err() != nil {
			time.Sleep(100 * time.Millisecond)
			return stepError(KindCancelled, "exec", "", e.Context.Err())
		}
		return waitErr
	}
	return nil
}

// RunStreamed runs cmd and forwards each stdout/stderr line to the log
// pane tagged with step. Used for makepkg and other long builds.
func (e *Executor) RunStreamed(cmd *exec.Cmd, log *LogPane, pkg, step string) error {
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.Stdin = strings.NewReader("")

	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		sc := bufio.NewScanner(pr)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			log.Infof(pkg, step, "%s", sc.Text())
		}
	}()

	err := e.Run(cmd)
	pw.Close()
	<-scanDone
	return err
}

// Output runs cmd and returns its stdout, discarding stderr unless the
// command fails.
func (e *Executor) Output(cmd *exec.Cmd) ([]byte, error) {
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	cmd.Stdin = strings.NewReader("")
	if err := e.Run(cmd); err != nil {
		msg := strings.TrimSpace(errBuf.String())
		if strings.Contains(msg, "unable to lock database") {
			return out.Bytes(), fmt.Errorf("%w: %s", errDatabaseLocked, msg)
		}
		if msg != "" {
			return out.Bytes(), fmt.Errorf("%w: %s", err, msg)
		}
		return out.Bytes(), err
	}
	return out.Bytes(), nil
}

// commandOnPath reports whether a driver binary is available.
func commandOnPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
