package backend

import (
	"errors"
	"fmt"
	"strings"

	"tally/internal/config"
)

var errNoConfig = errors.New("backend: no application config")

// backendNames lists the accepted DATA_BACKEND values.
func backendNames() string {
	return strings.Join([]string{SQLiteBackend.String(), MemoryBackend.String()}, ", ")
}

// FromAppConfig picks the ledger store and event settings out of cfg.
func FromAppConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, errNoConfig
	}
	c := Config{
		Type:         BackendType(cfg.DataBackend),
		Entities:     cfg.EntitySet(),
		SQLiteDBPath: cfg.SQLiteDBPath,
		AMQPURL:      cfg.AMQPURL,
		AMQPExchange: cfg.AMQPExchange,
		AMQPQueue:    cfg.AMQPQueue,
	}
	if !c.Type.IsValid() {
		return Config{}, fmt.Errorf("backend: DATA_BACKEND %q is not one of %s", cfg.DataBackend, backendNames())
	}
	return c, nil
}

// Validate checks that the store can be opened: a known type, a non-empty
// entity set and, for sqlite, a database path.
func (c Config) Validate() error {
	switch {
	case !c.Type.IsValid():
		return fmt.Errorf("backend: type %q is not one of %s", c.Type, backendNames())
	case c.Entities.Len() == 0:
		return errors.New("backend: entity set is empty")
	case c.Type == SQLiteBackend && c.SQLiteDBPath == "":
		return errors.New("backend: sqlite needs SQLITE_DB_PATH")
	}
	return nil
}
