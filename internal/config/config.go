package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ApprovalMode controls how much confirmation the scheduler asks for
// before running a tool.
type ApprovalMode string

const (
	// ApprovalDefault confirms every exec and edit call unless it already
	// matches the allowlist.
	ApprovalDefault ApprovalMode = "default"
	// ApprovalAutoEdit skips confirmation for edit-kind tools but still
	// confirms exec-kind ones.
	ApprovalAutoEdit ApprovalMode = "auto_edit"
	// ApprovalYolo skips confirmation entirely.
	ApprovalYolo ApprovalMode = "yolo"
)

// Thresholds bounds how aggressively tool output gets truncated.
type Thresholds struct {
	OutputByteThreshold int
	TruncateLines       int
	WrapWidth           int
}

// ShellExecConfig bounds how the reference exec tool runs commands.
type ShellExecConfig struct {
	Shell          string
	BannedPrefixes []string
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	// StemmableCommands seeds allowlist.GetCommandPrefix so multi-word
	// CLIs (git checkout, gh run, docker compose, ...) get a sensible
	// allowlist key instead of collapsing to just their first word.
	StemmableCommands []string
}

func defaultThresholds() Thresholds {
	return Thresholds{
		OutputByteThreshold: 50 * 1024,
		TruncateLines:       200,
		WrapWidth:           120,
	}
}

func defaultShellExec() ShellExecConfig {
	return ShellExecConfig{
		Shell: "bash",
		BannedPrefixes: []string{
			"alias", "bg", "bind", "builtin", "command", "declare", "dirs",
			"disown", "enable", "eval", "exec", "export", "fc", "fg",
			"jobs", "kill", "local", "popd", "pushd", "set", "shopt",
			"source", "typeset", "ulimit", "umask", "unalias", "unset", "wait",
		},
		DefaultTimeout: 120 * time.Second,
		MaxTimeout:     600 * time.Second,
		StemmableCommands: []string{
			"git", "git checkout", "git commit", "git push",
			"npm", "npm run", "npx",
			"gh", "gh run", "gh pr",
			"docker", "docker compose",
			"kubectl",
		},
	}
}

// Config is the scheduler's process-wide configuration handle. Approval
// mode and the allowed-tools list are mutated at runtime by
// ProceedAlways-family confirmation outcomes, and read on every
// subsequent confirmation check within the same or a later batch - it is
// not a snapshot taken once at startup.
type Config struct {
	mu sync.RWMutex

	approvalMode ApprovalMode
	allowedTools []string
	tempDir      string
	thresholds   Thresholds
	shellExec    ShellExecConfig
}

// New builds a Config with the documented defaults and the given temp
// directory for output spill files.
func New(tempDir string) *Config {
	return &Config{
		approvalMode: ApprovalDefault,
		tempDir:      tempDir,
		thresholds:   defaultThresholds(),
		shellExec:    defaultShellExec(),
	}
}

func (c *Config) ApprovalMode() ApprovalMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.approvalMode
}

func (c *Config) SetApprovalMode(mode ApprovalMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.approvalMode = mode
}

// AllowedTools returns a copy of the current allowlist entries.
func (c *Config) AllowedTools() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.allowedTools))
	copy(out, c.allowedTools)
	return out
}

// AddAllowedTool appends pattern to the allowlist if it is not already
// present.
func (c *Config) AddAllowedTool(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.allowedTools {
		if p == pattern {
			return
		}
	}
	c.allowedTools = append(c.allowedTools, pattern)
}

func (c *Config) TempDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tempDir
}

func (c *Config) Thresholds() Thresholds {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.thresholds
}

func (c *Config) SetThresholds(t Thresholds) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thresholds = t
}

func (c *Config) ShellExec() ShellExecConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shellExec
}

func (c *Config) SetShellExec(s ShellExecConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shellExec = s
}

// fileShape is the on-disk shape a config file is unmarshalled into
// before being applied to a Config. It exists separately from Config so
// viper/yaml never need to reach through the mutex-guarded struct.
type fileShape struct {
	ApprovalMode string   `mapstructure:"approval_mode" yaml:"approval_mode"`
	AllowedTools []string `mapstructure:"allowed_tools" yaml:"allowed_tools"`
	TempDir      string   `mapstructure:"temp_dir" yaml:"temp_dir"`
	Thresholds   struct {
		OutputByteThreshold int `mapstructure:"output_byte_threshold" yaml:"output_byte_threshold"`
		TruncateLines       int `mapstructure:"truncate_lines" yaml:"truncate_lines"`
		WrapWidth           int `mapstructure:"wrap_width" yaml:"wrap_width"`
	} `mapstructure:"thresholds" yaml:"thresholds"`
}

// LoadFile reads a YAML config file, substitutes ${env://VAR} references
// via SubstituteConfigEnvVars, and builds a Config from the result.
// Fields absent from the file keep their package defaults. It follows
// the same substitute-then-viper.ReadConfig pairing used elsewhere in
// this codebase, but scoped down to a single struct instead of a global
// viper instance, since the scheduler itself never reads configuration
// from disk - only the demo CLI that wires it up does.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	substituted, err := SubstituteConfigEnvVars(string(raw))
	if err != nil {
		return nil, fmt.Errorf("substitute env vars in config: %w", err)
	}

	v := viper.New()
	v.SetConfigType(configTypeFor(path))
	if err := v.ReadConfig(strings.NewReader(substituted)); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var shape fileShape
	if err := v.Unmarshal(&shape); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	tempDir := shape.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	cfg := New(tempDir)
	if shape.ApprovalMode != "" {
		cfg.SetApprovalMode(ApprovalMode(shape.ApprovalMode))
	}
	for _, t := range shape.AllowedTools {
		cfg.AddAllowedTool(t)
	}

	th := defaultThresholds()
	if shape.Thresholds.OutputByteThreshold > 0 {
		th.OutputByteThreshold = shape.Thresholds.OutputByteThreshold
	}
	if shape.Thresholds.TruncateLines > 0 {
		th.TruncateLines = shape.Thresholds.TruncateLines
	}
	if shape.Thresholds.WrapWidth > 0 {
		th.WrapWidth = shape.Thresholds.WrapWidth
	}
	cfg.SetThresholds(th)

	return cfg, nil
}

func configTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}

// MarshalDefaultsYAML returns the package defaults rendered as YAML in the
// same file shape LoadFile reads, using a plain yaml.Marshal since there's
// no live viper instance to query defaults back out of here.
func MarshalDefaultsYAML() ([]byte, error) {
	shape := fileShape{
		ApprovalMode: string(ApprovalDefault),
		TempDir:      os.TempDir(),
	}
	th := defaultThresholds()
	shape.Thresholds.OutputByteThreshold = th.OutputByteThreshold
	shape.Thresholds.TruncateLines = th.TruncateLines
	shape.Thresholds.WrapWidth = th.WrapWidth
	return yaml.Marshal(shape)
}
