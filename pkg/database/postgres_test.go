package database

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/24Tech-io/nursepor-stable-sub008/pkg/config"
)

func TestDSNEscapesCredentials(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db.internal",
		Port:     6432,
		User:     "sync",
		Password: "p@ss:w/rd",
		Name:     "nursepor",
		SSLMode:  "require",
	})

	parsed, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "postgres", parsed.Scheme)
	assert.Equal(t, "db.internal:6432", parsed.Host)
	assert.Equal(t, "/nursepor", parsed.Path)
	password, _ := parsed.User.Password()
	assert.Equal(t, "p@ss:w/rd", password)
	assert.Equal(t, "require", parsed.Query().Get("sslmode"))
}

func TestDSNWithoutSSLMode(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", Name: "nursepor"})
	assert.NotContains(t, dsn, "sslmode")
}

type recordingPool struct {
	maxOpen, maxIdle int
	lifetime, idle   time.Duration
}

func (p *recordingPool) SetMaxOpenConns(n int)              { p.maxOpen = n }
func (p *recordingPool) SetMaxIdleConns(n int)              { p.maxIdle = n }
func (p *recordingPool) SetConnMaxLifetime(d time.Duration) { p.lifetime = d }
func (p *recordingPool) SetConnMaxIdleTime(d time.Duration) { p.idle = d }

func TestConfigurePoolSkipsZeroValues(t *testing.T) {
	pool := &recordingPool{}
	configurePool(pool, config.DatabaseConfig{MaxOpenConns: 20, ConnMaxLifetime: time.Hour})

	assert.Equal(t, 20, pool.maxOpen)
	assert.Zero(t, pool.maxIdle)
	assert.Equal(t, time.Hour, pool.lifetime)
	assert.Zero(t, pool.idle)
}
