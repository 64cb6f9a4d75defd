// Package script implements the minimal YAML script host named in
// SPEC_FULL.md's Open Questions: one spawn{} followed by a sequence of
// send/expect steps, sufficient to drive the engine end-to-end from the
// CLI without embedding a general-purpose interpreter. Field shapes
// that accept either a scalar or a list follow the teacher's
// internal/egg/config.go convention (NetworkField, EnvField) of a
// custom UnmarshalYAML on a named slice type.
package script

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pjanx/wdye/internal/expect"
	"github.com/pjanx/wdye/internal/logger"
	"github.com/pjanx/wdye/internal/pattern"
	"github.com/pjanx/wdye/internal/process"
)

// ArgvField handles YAML unmarshaling of argv: string | []string. A
// scalar is split on whitespace, matching the shell-convenience most
// script authors expect for simple commands.
type ArgvField []string

func (a *ArgvField) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*a = ArgvField(strings.Fields(value.Value))
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*a = ArgvField(list)
	return nil
}

// SpawnStep is the script's single `spawn:` document key.
type SpawnStep struct {
	Argv ArgvField         `yaml:"argv"`
	Env  map[string]string `yaml:"env,omitempty"`
	CWD  string            `yaml:"cwd,omitempty"`
}

// PatternSpec is one arm of an `expect:` step's pattern list. Exactly
// one of Regex, Exact, EOF or Default should be set; Regex takes
// precedence if more than one is present.
type PatternSpec struct {
	Regex      string   `yaml:"regex,omitempty"`
	Exact      string   `yaml:"exact,omitempty"`
	EOF        bool     `yaml:"eof,omitempty"`
	Default    bool     `yaml:"default,omitempty"`
	NoCase     bool     `yaml:"nocase,omitempty"`
	NoTransfer bool     `yaml:"notransfer,omitempty"`
	Timeout    *float64 `yaml:"timeout,omitempty"`
	Print      string   `yaml:"print,omitempty"`
}

// ExpectStep is one `expect:` document entry: a pattern list plus an
// optional per-call default timeout override.
type ExpectStep struct {
	Timeout  *float64      `yaml:"timeout,omitempty"`
	Patterns []PatternSpec `yaml:"patterns"`
}

// Step is one element of the script's `steps:` sequence. Exactly one of
// Send or Expect should be set.
type Step struct {
	Send   string      `yaml:"send,omitempty"`
	Expect *ExpectStep `yaml:"expect,omitempty"`
}

// Script is the top-level script document.
type Script struct {
	Spawn SpawnStep `yaml:"spawn"`
	Steps []Step    `yaml:"steps"`
}

// Load reads and parses a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("script: read %s: %w", path, err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("script: parse %s: %w", path, err)
	}
	if len(s.Spawn.Argv) == 0 {
		return nil, fmt.Errorf("script: %s: spawn.argv is required", path)
	}
	return &s, nil
}

// Run spawns the script's process and executes its steps in order,
// returning the text reported by each matched pattern's `print` field
// (in step order) for the caller to display.
func Run(s *Script, defaultTimeout float64) ([]string, error) {
	environ := make(map[string]process.EnvOverride, len(s.Spawn.Env))
	for k, v := range s.Spawn.Env {
		environ[k] = process.EnvOverride{Value: v}
	}
	proc, err := process.Spawn(process.Config{
		Argv:    s.Spawn.Argv,
		Environ: environ,
		CWD:     s.Spawn.CWD,
	})
	if err != nil {
		return nil, fmt.Errorf("script: spawn: %w", err)
	}
	defer proc.Close()

	var transcript []string
	for i, step := range s.Steps {
		switch {
		case step.Send != "":
			if _, err := proc.Send(step.Send); err != nil {
				return transcript, fmt.Errorf("script: step %d: send: %w", i, err)
			}
		case step.Expect != nil:
			lines, err := runExpectStep(proc, step.Expect, defaultTimeout)
			if err != nil {
				return transcript, fmt.Errorf("script: step %d: expect: %w", i, err)
			}
			transcript = append(transcript, lines...)
		default:
			logger.Warn("script: step has neither send nor expect, skipping", "index", i)
		}
	}
	return transcript, nil
}

func runExpectStep(proc *process.Process, step *ExpectStep, defaultTimeout float64) ([]string, error) {
	dt := defaultTimeout
	if step.Timeout != nil {
		dt = *step.Timeout
	}

	patterns := make([]*pattern.Pattern, 0, len(step.Patterns))
	for i, spec := range step.Patterns {
		p, err := buildPattern(proc, spec)
		if err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i, err)
		}
		patterns = append(patterns, p)
	}

	values, err := expect.Run(patterns, dt)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			lines = append(lines, s)
		}
	}
	return lines, nil
}

// printValue, attached as each pattern's callback, turns a matched
// pattern's configured `print` template into the step's reported
// output (with $0, $1, ... substituted by capture group text).
func printValue(spec PatternSpec) pattern.Callback {
	return func(p *pattern.Pattern) ([]any, error) {
		if spec.Print == "" {
			return nil, nil
		}
		text := spec.Print
		for i := 0; i <= 9; i++ {
			group := p.At(i)
			if group == nil && i > 0 {
				continue
			}
			text = strings.ReplaceAll(text, fmt.Sprintf("$%d", i), string(group))
		}
		return []any{text}, nil
	}
}

func buildPattern(proc *process.Process, spec PatternSpec) (*pattern.Pattern, error) {
	values := []any{printValue(spec)}
	switch {
	case spec.Regex != "":
		return proc.Regex(pattern.RegexOpts{
			Pattern:    spec.Regex,
			NoCase:     spec.NoCase,
			NoTransfer: spec.NoTransfer,
			Values:     values,
		})
	case spec.Exact != "":
		return proc.Exact(pattern.ExactOpts{
			Literal:    spec.Exact,
			NoCase:     spec.NoCase,
			NoTransfer: spec.NoTransfer,
			Values:     values,
		}), nil
	case spec.EOF:
		return proc.Eof(pattern.EOFOpts{NoTransfer: spec.NoTransfer, Values: values}), nil
	case spec.Default:
		return proc.Default(pattern.DefaultOpts{Timeout: spec.Timeout, NoTransfer: spec.NoTransfer, Values: values}), nil
	default:
		return nil, fmt.Errorf("pattern spec has no regex/exact/eof/default set")
	}
}
