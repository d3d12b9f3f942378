package gate

import (
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds the settings shared by the resolver, evaluator and gate.
// Build it with DefaultConfig and Options; the zero value is not usable.
type Config struct {
	// CollectionCategories are the resource categories whose id is used as
	// a collection-level grant key. Compared case-insensitively.
	// Default: "collection", "table".
	CollectionCategories []string

	// Now is the clock used for session expiry. Default: time.Now.
	Now func() time.Time

	// Logger receives denials and collaborator faults. Default: discards.
	Logger logrus.FieldLogger
}

// Option customizes a Config.
type Option func(*Config)

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return Config{
		CollectionCategories: []string{"collection", "table"},
		Now:                  time.Now,
		Logger:               l,
	}
}

// WithClock replaces the clock used for session expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithCollectionCategories replaces the collection categories.
func WithCollectionCategories(categories ...string) Option {
	return func(c *Config) {
		if len(categories) > 0 {
			c.CollectionCategories = append([]string(nil), categories...)
		}
	}
}

func newConfig(opts []Option) Config {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

func (c Config) isCollection(category string) bool {
	for _, cat := range c.CollectionCategories {
		if strings.EqualFold(cat, category) {
			return true
		}
	}
	return false
}
