package config

import (
	"fmt"
	"time"
)

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithFilesystemFallback selects the fs fallback rooted at inputRoot
func WithFilesystemFallback(inputRoot string) Option {
	return func(c *ServerConfig) error {
		if inputRoot == "" {
			return fmt.Errorf("input root cannot be empty")
		}
		c.Fallback = FallbackFS
		c.InputRoot = inputRoot
		return nil
	}
}

// WithS3Fallback selects the s3 fallback
func WithS3Fallback(s3 S3Config) Option {
	return func(c *ServerConfig) error {
		if s3.Bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		if s3.Region == "" {
			s3.Region = "us-east-1"
		}
		c.Fallback = FallbackS3
		c.S3 = s3
		return nil
	}
}

// WithMemoryFallback selects an in-memory fallback, mostly for tests and demos
func WithMemoryFallback() Option {
	return func(c *ServerConfig) error {
		c.Fallback = FallbackMemory
		return nil
	}
}

// WithoutFallback disables the fallback tier and mirroring
func WithoutFallback() Option {
	return func(c *ServerConfig) error {
		c.Fallback = FallbackNone
		return nil
	}
}

// WithDefaultFolder sets the folder used for uploads and fallback reads
func WithDefaultFolder(folder string) Option {
	return func(c *ServerConfig) error {
		if folder == "" {
			return fmt.Errorf("default folder cannot be empty")
		}
		c.DefaultFolder = folder
		return nil
	}
}

// WithFallbackTimeout bounds a single fallback read
func WithFallbackTimeout(d time.Duration) Option {
	return func(c *ServerConfig) error {
		if d <= 0 {
			return fmt.Errorf("fallback timeout must be positive, got: %s", d)
		}
		c.FallbackTimeout = d
		return nil
	}
}

// WithFallbackWriteBack toggles storing fallback hits in the cache
func WithFallbackWriteBack(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.FallbackWriteBack = enabled
		return nil
	}
}

// WithMirrorWrites toggles mirroring stored records to the fallback source
func WithMirrorWrites(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.MirrorWrites = enabled
		return nil
	}
}

// WithHistoryPolicy sets "preserve" or "reset"
func WithHistoryPolicy(policy string) Option {
	return func(c *ServerConfig) error {
		if policy != "preserve" && policy != "reset" {
			return fmt.Errorf("history policy must be 'preserve' or 'reset', got: %s", policy)
		}
		c.HistoryPolicy = policy
		return nil
	}
}

// WithNotifyQueueSize sets the notification queue size
func WithNotifyQueueSize(n int) Option {
	return func(c *ServerConfig) error {
		if n <= 0 {
			return fmt.Errorf("notify queue size must be positive, got: %d", n)
		}
		c.NotifyQueueSize = n
		return nil
	}
}

// WithAPIKeySHA256 enables the API key gate
func WithAPIKeySHA256(sum string) Option {
	return func(c *ServerConfig) error {
		c.APIKeySHA256 = sum
		return nil
	}
}
