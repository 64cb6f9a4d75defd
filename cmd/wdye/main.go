package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pjanx/wdye/internal/expect"
	"github.com/pjanx/wdye/internal/logger"
	"github.com/pjanx/wdye/internal/process"
	"github.com/pjanx/wdye/internal/script"
	"github.com/pjanx/wdye/internal/termio"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	var logLevel string
	var logFile string

	root := &cobra.Command{
		Use:   "wdye",
		Short: "wdye — scripted pty expect engine",
		Long:  "Spawns a process under a pseudoterminal and drives it through a sequence of send/expect steps described in a YAML script.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logLevel, logFile)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")

	root.AddCommand(runCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Run a send/expect script against a freshly spawned process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := script.Load(args[0])
			if err != nil {
				return err
			}
			if interactive {
				return runInteractive(s)
			}
			lines, err := script.Run(s, expect.DefaultTimeout)
			for _, l := range lines {
				fmt.Println(l)
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false,
		"spawn the script's process and hand the raw terminal to it instead of running its steps")
	return cmd
}

// runInteractive implements the SPEC_FULL.md "Process:interact-style raw
// passthrough" supplement as a CLI-only convenience: it spawns the
// script's process directly (bypassing its send/expect steps) and pumps
// bytes between the controlling terminal and the child's pty. It returns
// once the child's output has ended and the stdin loop has stopped; the
// stdin loop stops only when a read from stdin fails or a write to the
// pty fails, so after the child exits it waits for one more read from
// stdin to return. The engine itself never touches the controlling
// terminal — only cmd/wdye does, and only here.
func runInteractive(s *script.Script) error {
	environ := make(map[string]process.EnvOverride, len(s.Spawn.Env))
	for k, v := range s.Spawn.Env {
		environ[k] = process.EnvOverride{Value: v}
	}
	proc, err := process.Spawn(process.Config{Argv: s.Spawn.Argv, Environ: environ, CWD: s.Spawn.CWD})
	if err != nil {
		return fmt.Errorf("run -i: spawn: %w", err)
	}
	defer proc.Close()

	sessionID := uuid.New().String()[:8]
	logger.Info("run -i: handing terminal to child", "session", sessionID, "pid", proc.Pid())

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("run -i: %w", err)
		}
		defer term.Restore(fd, oldState)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			rr, err := termio.ReadFd(proc.Fd(), buf)
			if err != nil || rr.EOF {
				return
			}
			if _, err := os.Stdout.Write(rr.Data); err != nil {
				return
			}
		}
	}()

	stdinBuf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(stdinBuf)
		if n > 0 {
			if werr := termio.WriteFd(proc.Fd(), stdinBuf[:n]); werr != nil {
				break
			}
		}
		if err != nil {
			break
		}
	}
	<-done
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the wdye version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}
