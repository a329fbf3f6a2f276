package db

import (
	"testing"
	"time"

	"github.com/smallbiznis/meridian/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestPoolFromConfig_Defaults(t *testing.T) {
	pool := PoolFromConfig(config.Config{})

	assert.Equal(t, 5, pool.MaxIdleConns)
	assert.Equal(t, 25, pool.MaxOpenConns)
	assert.Equal(t, 30*time.Minute, pool.ConnMaxLifetime)
	assert.Equal(t, 5*time.Minute, pool.ConnMaxIdleTime)
}

func TestPoolFromConfig_ExplicitValuesWin(t *testing.T) {
	pool := PoolFromConfig(config.Config{
		DBMaxIdleConn:     2,
		DBMaxOpenConn:     50,
		DBConnMaxLifetime: 60,
		DBConnMaxIdleTime: 10,
	})

	assert.Equal(t, 2, pool.MaxIdleConns)
	assert.Equal(t, 50, pool.MaxOpenConns)
	assert.Equal(t, time.Minute, pool.ConnMaxLifetime)
	assert.Equal(t, 10*time.Second, pool.ConnMaxIdleTime)
}
