// spawn.go implements the spawn facade of spec.md §4.2: environment
// construction, terminfo capture, winsize selection, and pty_fork.
package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/creack/pty"

	"github.com/pjanx/wdye/internal/asciicast"
	"github.com/pjanx/wdye/internal/logger"
	"github.com/pjanx/wdye/internal/terminfo"
	"github.com/pjanx/wdye/internal/termio"
)

// EnvOverride is one entry of a spawn's environment overrides: Value
// sets the variable, Unset removes it — the Go rendering of spec.md
// §4.2's "string -> set; false/nil -> remove".
type EnvOverride struct {
	Value string
	Unset bool
}

// Config is the script-visible spawn{argv[0..n-1], environ=?} record
// (spec.md §6).
type Config struct {
	Argv    []string
	Environ map[string]EnvOverride
	CWD     string
}

// Spawn implements the spawn facade. Errors: missing argv[0], failed
// PATH lookup, or failed pty_fork (spec.md §6).
func Spawn(cfg Config) (*Process, error) {
	if len(cfg.Argv) == 0 || cfg.Argv[0] == "" {
		return nil, fmt.Errorf("spawn: argv[0] is required")
	}

	env := buildEnv(cfg.Environ)
	term := envValue(env, "TERM")

	snap := terminfo.Load(term)
	cols, rows := terminfo.Winsize(snap)

	binPath, err := lookPath(cfg.Argv[0], env)
	if err != nil {
		return nil, fmt.Errorf("spawn: %w", err)
	}

	cmd := exec.Command(binPath, cfg.Argv[1:]...)
	cmd.Env = env
	if cfg.CWD != "" {
		cmd.Dir = cfg.CWD
	}

	child, err := termio.Fork(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("spawn: %w", err)
	}

	proc := &Process{
		child:    child,
		pid:      child.Pid,
		terminfo: snap,
		term:     term,
		startTS:  time.Now(),
	}

	if os.Getenv("WDYE_LOGGING") != "" {
		logPath := fmt.Sprintf("%s-%s.%d.cast",
			filepath.Base(os.Args[0]), filepath.Base(cfg.Argv[0]), child.Pid)
		w, openErr := asciicast.Open(logPath, int(cols), int(rows), term, proc.startTS)
		if openErr != nil {
			logger.Warn("spawn: open asciicast log failed", "path", logPath, "err", openErr)
		} else {
			proc.logSink = w
			logger.Debug("spawn: asciicast logging enabled", "path", logPath)
		}
	}

	return proc, nil
}

// buildEnv clones the parent environment and applies overrides, then
// ensures TERM has some value (spec.md §4.2: "A default TERM=dumb is
// inserted if none is supplied").
func buildEnv(overrides map[string]EnvOverride) []string {
	m := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	for k, ov := range overrides {
		if ov.Unset {
			delete(m, k)
		} else {
			m[k] = ov.Value
		}
	}
	if _, ok := m["TERM"]; !ok {
		m["TERM"] = "dumb"
	}

	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func envValue(env []string, key string) string {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):]
		}
	}
	return ""
}

// lookPath resolves argv[0] against the PATH of the overridden child
// environment rather than the parent process's PATH, per spec.md §4.2
// ("execute the program via PATH lookup that honors the override
// environment").
func lookPath(name string, env []string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		if isExecutable(name) {
			return name, nil
		}
		return "", fmt.Errorf("%s: not an executable file", name)
	}
	for _, dir := range filepath.SplitList(envValue(env, "PATH")) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: not found in PATH", name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
