package queue

import (
	"fmt"

	"moments/internal/config"
	"moments/internal/moments"
)

// DefaultMaxSize is the default maximum total size of queued originals (2GB).
const DefaultMaxSize int64 = 2 * 1024 * 1024 * 1024

// NewQueueFromConfig creates a Queue based on the config type.
func NewQueueFromConfig(cfg config.QueueConfig, encryptor moments.Encryptor) (*Queue, error) {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if encryptor == nil {
		return nil, fmt.Errorf("queue requires an encryptor")
	}

	switch cfg.Type {
	case "memory":
		return NewMemoryQueue(encryptor, maxSize), nil
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem queue requires dir to be set")
		}
		return NewFileSystemQueue(cfg.Dir, encryptor, maxSize)
	default:
		return nil, fmt.Errorf("unknown queue type: %s", cfg.Type)
	}
}

// RetryPolicyFromConfig returns the sync retry policy configured for the queue.
func RetryPolicyFromConfig(cfg config.QueueConfig) moments.RetryPolicy {
	p := moments.DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay.Duration > 0 {
		p.BaseDelay = cfg.BaseDelay.Duration
	}
	if cfg.MaxDelay.Duration > 0 {
		p.MaxDelay = cfg.MaxDelay.Duration
	}
	return p
}
