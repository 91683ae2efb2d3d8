package database

import (
	"context"
	"fmt"
	"time"

	"healthcompanion/config"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/valkey-io/valkey-go"
)

// Valkey database index layout
const (
	// GENERAL_CACHE_INDEX (DB 0) - run locks and miscellaneous keys
	GENERAL_CACHE_INDEX = iota

	// PREFERENCES_CACHE_INDEX (DB 1) - read-through copies of user preferences
	PREFERENCES_CACHE_INDEX

	// EVENTS_CACHE_INDEX (DB 2) - pipeline lifecycle pub/sub
	EVENTS_CACHE_INDEX

	// QUEUE_CACHE_INDEX (DB 3) - outbound notification queue
	QUEUE_CACHE_INDEX
)

var cacheIndexNames = map[int]string{
	GENERAL_CACHE_INDEX:     "General",
	PREFERENCES_CACHE_INDEX: "Preferences",
	EVENTS_CACHE_INDEX:      "Events",
	QUEUE_CACHE_INDEX:       "Queue",
}

func (s *DB) initializeCacheDB(config config.Config) error {
	log := s.log.Function("initializeCacheDB")
	log.Info("initializing cache database")

	address := config.DatabaseCacheAddress
	port := config.DatabaseCachePort
	if address == "" || port == 0 {
		return log.Errorf("failed to initialize cache database", "address or port is empty")
	}

	newClient := func(index int) (CacheClient, error) {
		client, err := valkey.NewClient(
			valkey.ClientOption{
				InitAddress: []string{fmt.Sprintf("%s:%d", address, port)},
				SelectDB:    index,
			},
		)
		if err != nil {
			return nil, log.Err("failed to create valkey client", err, "cache", cacheIndexNames[index])
		}
		return client, nil
	}

	var cacheDB Cache
	var err error
	if cacheDB.General, err = newClient(GENERAL_CACHE_INDEX); err != nil {
		return err
	}
	if cacheDB.Preferences, err = newClient(PREFERENCES_CACHE_INDEX); err != nil {
		return err
	}
	if cacheDB.Events, err = newClient(EVENTS_CACHE_INDEX); err != nil {
		return err
	}
	if cacheDB.Queue, err = newClient(QUEUE_CACHE_INDEX); err != nil {
		return err
	}

	s.Cache = cacheDB

	if config.DatabaseCacheReset != -1 {
		go clearCacheDB(config.DatabaseCacheReset, cacheDB)
	}

	return nil
}

func (c Cache) byIndex(index int) CacheClient {
	switch index {
	case GENERAL_CACHE_INDEX:
		return c.General
	case PREFERENCES_CACHE_INDEX:
		return c.Preferences
	case EVENTS_CACHE_INDEX:
		return c.Events
	case QUEUE_CACHE_INDEX:
		return c.Queue
	default:
		return nil
	}
}

func clearCacheDB(index int, cacheDB Cache) {
	log := logger.New("database").File("cache.database").Function("clearCacheDB")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := cacheDB.byIndex(index)
	if client == nil {
		log.Warn("Invalid cache database index", "index", index)
		return
	}

	if err := client.Do(ctx, client.B().Flushdb().Build()).Error(); err != nil {
		log.Er("Failed to clear cache database", err, "index", index, "dbName", cacheIndexNames[index])
		return
	}

	log.Info("Successfully cleared cache database", "index", index, "dbName", cacheIndexNames[index])
}
