package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EmendConfig represents the top-level emend.yml configuration
type EmendConfig struct {
	Version    string            `yaml:"version"`
	Redis      *RedisConfig      `yaml:"redis,omitempty"`
	Capability *CapabilityConfig `yaml:"capability"`
	Generator  *GeneratorConfig  `yaml:"generator,omitempty"`
	Review     *ReviewConfig     `yaml:"review,omitempty"`
}

// RedisConfig points the CLI and services at a Redis deployment. When URL
// is empty, commands fall back to the instance container managed by
// `emend up` (or the REDIS_URL environment variable for services).
type RedisConfig struct {
	URL string `yaml:"url,omitempty"`
}

// CapabilityConfig specifies the content-generation endpoint used for
// drafting and evaluating proposals.
type CapabilityConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"` // Per-request bound (default 60)
}

// Timeout returns the per-request timeout as a duration.
func (c *CapabilityConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GeneratorConfig bounds proposal drafting.
type GeneratorConfig struct {
	Attempts       int `yaml:"attempts,omitempty"`        // Retry budget for transient failures (default 3)
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"` // Whole-generation bound (default 120)
}

// Timeout returns the whole-generation timeout as a duration.
func (g *GeneratorConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// ReviewConfig controls the reviewer pool and the consensus thresholds.
// Threshold fields are pointers so an explicit zero survives loading;
// Validate fills absent values with the reference defaults.
type ReviewConfig struct {
	Reviewers        int      `yaml:"reviewers,omitempty"`         // Evaluations requested per round (default 3)
	Quorum           int      `yaml:"quorum,omitempty"`            // Minimum evaluations to finalize (default 2)
	ApproveThreshold *float64 `yaml:"approve_threshold,omitempty"` // Mean score for approved (default 8.0)
	ReviseThreshold  *float64 `yaml:"revise_threshold,omitempty"`  // Mean score for approved_with_modifications (default 5.0)
	EscalationSpread *float64 `yaml:"escalation_spread,omitempty"` // Max-min score spread flagging escalation (default 4.0)
	Attempts         int      `yaml:"attempts,omitempty"`          // Retry budget per reviewer invocation (default 2)
	TimeoutSeconds   int      `yaml:"timeout_seconds,omitempty"`   // Per-reviewer bound (default 60)
	MaxConcurrent    int      `yaml:"max_concurrent,omitempty"`    // Concurrent review rounds (default 4)
}

// Timeout returns the per-reviewer timeout as a duration.
func (r *ReviewConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// Validate performs strict validation on the configuration and fills in
// defaults for absent optional values.
func (c *EmendConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: capability block
	if c.Capability == nil {
		return fmt.Errorf("capability configuration is required")
	}
	if err := c.Capability.Validate(); err != nil {
		return err
	}

	if c.Redis == nil {
		c.Redis = &RedisConfig{}
	}

	if c.Generator == nil {
		c.Generator = &GeneratorConfig{}
	}
	if err := c.Generator.Validate(); err != nil {
		return err
	}

	if c.Review == nil {
		c.Review = &ReviewConfig{}
	}
	if err := c.Review.Validate(); err != nil {
		return err
	}

	return nil
}

// Validate checks the capability block and applies defaults.
func (c *CapabilityConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("capability: endpoint is required")
	}
	if c.Model == "" {
		return fmt.Errorf("capability: model is required")
	}

	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 60
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("capability: timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}

	return nil
}

// Validate checks the generator block and applies defaults.
func (g *GeneratorConfig) Validate() error {
	if g.Attempts == 0 {
		g.Attempts = 3
	}
	if g.Attempts < 1 {
		return fmt.Errorf("generator: attempts must be >= 1, got %d", g.Attempts)
	}

	if g.TimeoutSeconds == 0 {
		g.TimeoutSeconds = 120
	}
	if g.TimeoutSeconds < 0 {
		return fmt.Errorf("generator: timeout_seconds must be positive, got %d", g.TimeoutSeconds)
	}

	return nil
}

// Validate checks the review block and applies defaults.
func (r *ReviewConfig) Validate() error {
	if r.Reviewers == 0 {
		r.Reviewers = 3
	}
	if r.Reviewers < 1 {
		return fmt.Errorf("review: reviewers must be >= 1, got %d", r.Reviewers)
	}

	if r.Quorum == 0 {
		r.Quorum = 2
	}
	if r.Quorum < 1 {
		return fmt.Errorf("review: quorum must be >= 1, got %d", r.Quorum)
	}
	if r.Quorum > r.Reviewers {
		return fmt.Errorf("review: quorum (%d) cannot exceed reviewers (%d)", r.Quorum, r.Reviewers)
	}

	if r.ApproveThreshold == nil {
		approve := 8.0
		r.ApproveThreshold = &approve
	}
	if r.ReviseThreshold == nil {
		revise := 5.0
		r.ReviseThreshold = &revise
	}
	if r.EscalationSpread == nil {
		spread := 4.0
		r.EscalationSpread = &spread
	}

	if *r.ApproveThreshold < 0 || *r.ApproveThreshold > 10 {
		return fmt.Errorf("review: approve_threshold must be within [0,10], got %g", *r.ApproveThreshold)
	}
	if *r.ReviseThreshold < 0 || *r.ReviseThreshold > 10 {
		return fmt.Errorf("review: revise_threshold must be within [0,10], got %g", *r.ReviseThreshold)
	}
	if *r.ReviseThreshold > *r.ApproveThreshold {
		return fmt.Errorf("review: revise_threshold (%g) cannot exceed approve_threshold (%g)",
			*r.ReviseThreshold, *r.ApproveThreshold)
	}
	if *r.EscalationSpread < 0 {
		return fmt.Errorf("review: escalation_spread must be >= 0, got %g", *r.EscalationSpread)
	}

	if r.Attempts == 0 {
		r.Attempts = 2
	}
	if r.Attempts < 1 {
		return fmt.Errorf("review: attempts must be >= 1, got %d", r.Attempts)
	}

	if r.TimeoutSeconds == 0 {
		r.TimeoutSeconds = 60
	}
	if r.TimeoutSeconds < 0 {
		return fmt.Errorf("review: timeout_seconds must be positive, got %d", r.TimeoutSeconds)
	}

	if r.MaxConcurrent == 0 {
		r.MaxConcurrent = 4
	}
	if r.MaxConcurrent < 1 {
		return fmt.Errorf("review: max_concurrent must be >= 1, got %d", r.MaxConcurrent)
	}

	return nil
}

// Load reads and validates emend.yml from the specified path
func Load(path string) (*EmendConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates emend.yml content. Decoding is strict:
// unknown keys are rejected so typos surface at load time instead of
// silently falling back to defaults.
func Parse(data []byte) (*EmendConfig, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var config EmendConfig
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
