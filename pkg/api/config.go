package api

import (
	"fmt"
	"time"
)

// BackoffStrategy names how retry delays grow.
type BackoffStrategy string

const (
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
	BackoffConstant    BackoffStrategy = "constant"
)

// Config holds the engine settings that can be changed at runtime.
type Config struct {
	// EnableAtomicOperations switches the whole advance path on or off.
	EnableAtomicOperations bool `mapstructure:"enable_atomic_operations" json:"enableAtomicOperations" yaml:"enable_atomic_operations"`
	EnableLocking          bool `mapstructure:"enable_locking" json:"enableLocking" yaml:"enable_locking"`
	// EnableVersionControl controls whether commits bump Version and
	// recompute Checksum.
	EnableVersionControl bool `mapstructure:"enable_version_control" json:"enableVersionControl" yaml:"enable_version_control"`
	// EnableConflictDetection enables the ExpectedVersion precondition.
	EnableConflictDetection bool `mapstructure:"enable_conflict_detection" json:"enableConflictDetection" yaml:"enable_conflict_detection"`
	EnableRollback          bool `mapstructure:"enable_rollback" json:"enableRollback" yaml:"enable_rollback"`
	// EnableAuditLog writes one structured audit line per committed change.
	EnableAuditLog bool `mapstructure:"enable_audit_log" json:"enableAuditLog" yaml:"enable_audit_log"`

	LockTimeout      time.Duration `mapstructure:"lock_timeout" json:"lockTimeout" yaml:"lock_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" json:"operationTimeout" yaml:"operation_timeout"`
	MaxRetries       int           `mapstructure:"max_retries" json:"maxRetries" yaml:"max_retries"`

	RetryBackoff    time.Duration   `mapstructure:"retry_backoff" json:"retryBackoff" yaml:"retry_backoff"`
	BackoffStrategy BackoffStrategy `mapstructure:"backoff_strategy" json:"backoffStrategy" yaml:"backoff_strategy"`

	OperationSweepInterval time.Duration `mapstructure:"operation_sweep_interval" json:"operationSweepInterval" yaml:"operation_sweep_interval"`
	LockSweepInterval      time.Duration `mapstructure:"lock_sweep_interval" json:"lockSweepInterval" yaml:"lock_sweep_interval"`
	OperationRetention     time.Duration `mapstructure:"operation_retention" json:"operationRetention" yaml:"operation_retention"`
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		EnableAtomicOperations:  true,
		EnableLocking:           true,
		EnableVersionControl:    true,
		EnableConflictDetection: true,
		EnableRollback:          true,
		EnableAuditLog:          true,

		LockTimeout:      5 * time.Minute,
		OperationTimeout: 30 * time.Second,
		MaxRetries:       3,

		RetryBackoff:    time.Second,
		BackoffStrategy: BackoffLinear,

		OperationSweepInterval: time.Second,
		LockSweepInterval:      30 * time.Second,
		OperationRetention:     24 * time.Hour,
	}
}

// Validate checks for settings the engine cannot work with.
func (c Config) Validate() error {
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock timeout must be positive, got %s", c.LockTimeout)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.OperationTimeout < 0 {
		return fmt.Errorf("operation timeout must not be negative, got %s", c.OperationTimeout)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff must not be negative, got %s", c.RetryBackoff)
	}
	switch c.BackoffStrategy {
	case BackoffLinear, BackoffExponential, BackoffConstant:
	default:
		return fmt.Errorf("unknown backoff strategy %q", c.BackoffStrategy)
	}
	if c.OperationSweepInterval <= 0 || c.LockSweepInterval <= 0 {
		return fmt.Errorf("sweep intervals must be positive")
	}
	return nil
}

// ConfigUpdate is a partial Config: nil fields are left unchanged.
type ConfigUpdate struct {
	EnableAtomicOperations  *bool
	EnableLocking           *bool
	EnableVersionControl    *bool
	EnableConflictDetection *bool
	EnableRollback          *bool
	EnableAuditLog          *bool

	LockTimeout      *time.Duration
	OperationTimeout *time.Duration
	MaxRetries       *int

	RetryBackoff    *time.Duration
	BackoffStrategy *BackoffStrategy

	OperationRetention *time.Duration
}

// Apply returns c with every non-nil field of u applied.
func (u ConfigUpdate) Apply(c Config) Config {
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	setDur := func(dst *time.Duration, v *time.Duration) {
		if v != nil {
			*dst = *v
		}
	}

	setBool(&c.EnableAtomicOperations, u.EnableAtomicOperations)
	setBool(&c.EnableLocking, u.EnableLocking)
	setBool(&c.EnableVersionControl, u.EnableVersionControl)
	setBool(&c.EnableConflictDetection, u.EnableConflictDetection)
	setBool(&c.EnableRollback, u.EnableRollback)
	setBool(&c.EnableAuditLog, u.EnableAuditLog)

	setDur(&c.LockTimeout, u.LockTimeout)
	setDur(&c.OperationTimeout, u.OperationTimeout)
	setDur(&c.RetryBackoff, u.RetryBackoff)
	setDur(&c.OperationRetention, u.OperationRetention)

	if u.MaxRetries != nil {
		c.MaxRetries = *u.MaxRetries
	}
	if u.BackoffStrategy != nil {
		c.BackoffStrategy = *u.BackoffStrategy
	}
	return c
}

// Ptr is a small helper for building ConfigUpdate values.
func Ptr[T any](v T) *T { return &v }
