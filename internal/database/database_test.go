package database

import (
	"testing"

	"healthcompanion/config"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/stretchr/testify/assert"
)

func TestCacheConstants(t *testing.T) {
	assert.Equal(t, 0, GENERAL_CACHE_INDEX)
	assert.Equal(t, 1, PREFERENCES_CACHE_INDEX)
	assert.Equal(t, 2, EVENTS_CACHE_INDEX)
	assert.Equal(t, 3, QUEUE_CACHE_INDEX)
	assert.Len(t, cacheIndexNames, 4)
}

func TestDB_StructCreation(t *testing.T) {
	log := logger.New("test")

	db := &DB{
		log: log,
	}

	assert.NotNil(t, db)
	assert.Nil(t, db.SQL)
	assert.Nil(t, db.Cache.byIndex(99))
}

func TestGormConfig_TranslatesErrors(t *testing.T) {
	cfg := GormConfig()

	assert.True(t, cfg.TranslateError)
	assert.True(t, cfg.SkipDefaultTransaction)
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.Config{
		DatabaseHost:     "localhost",
		DatabasePort:     5432,
		DatabaseUser:     "health",
		DatabasePassword: "secret",
		DatabaseName:     "companion",
	})

	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=companion")
	assert.Contains(t, dsn, "TimeZone=UTC")
}

func TestMigrationModels(t *testing.T) {
	assert.Len(t, MigrationModels(), 6)
}

func TestCacheBuilder_RequiresKey(t *testing.T) {
	err := NewCacheBuilder(nil, "").WithValue("v").Lpush()
	assert.EqualError(t, err, "key is required")

	_, err = NewCacheBuilder(nil, "k").SetNX()
	assert.EqualError(t, err, "value is required")

	err = NewCacheBuilder(nil, "k").WithHash("prefs").WithStruct(func() {}).Set()
	assert.ErrorContains(t, err, "failed to marshal value to json")
}
