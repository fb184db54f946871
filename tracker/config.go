package tracker

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config contains the parameters to start a Tracker for one leader
// incarnation.
type Config struct {
	// Logger implements system logging for the tracker.
	// If nil, logging is disabled.
	Logger *zap.Logger `yaml:"-"`

	// Metrics receives the tracker's counters. If nil, unregistered
	// counters are created so that callers never have to nil-check.
	Metrics *Metrics `yaml:"-"`

	// LeaderID is the id of the leader node owning this tracker.
	LeaderID uint64 `yaml:"leader_id"`

	// Term is the leader's current term, stamped on outgoing requests.
	// The tracker never changes it; a new term means a new leader
	// incarnation and therefore a new Tracker.
	Term uint64 `yaml:"-"`

	// Storage reads the leader's log. The tracker only reads; the storage
	// engine itself is an external collaborator.
	Storage LogStorage `yaml:"-"`

	// Snapshots starts snapshot transfers toward lagging followers.
	// Optional; if nil, a follower needing compacted entries stays in
	// PROBE and the condition is logged.
	Snapshots SnapshotSender `yaml:"-"`

	// MaxEntriesPerMessage is the maximum number of entries for each
	// append message. If 0, one entry is sent per message.
	MaxEntriesPerMessage uint64 `yaml:"max_entries_per_message"`

	// MaxInflightMessages is the maximum number of in-flight append
	// messages per follower during optimistic replication. The transport
	// usually has its own sending buffer; this bound keeps the tracker
	// from overflowing it.
	MaxInflightMessages int `yaml:"max_inflight_messages"`
}

func (c *Config) validate() error {
	if c.Storage == nil {
		return errors.New("tracker storage cannot be nil")
	}

	if c.LeaderID == 0 {
		return errors.New("cannot use 0 for leader ID")
	}

	if c.MaxInflightMessages <= 0 {
		return errors.New("max number of inflight messages must be greater than 0")
	}

	return nil
}

// LoadConfig reads the tunable fields of a Config from a YAML file. The
// collaborator fields (Storage, Snapshots, Logger, Metrics) must be filled
// in by the caller before the Config is used.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config file")
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse config file")
	}

	return c, nil
}
