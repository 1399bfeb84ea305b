package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Parse_Defaults(t *testing.T) {
	assert := assert.New(t)

	cfg, err := Parse(map[string]string{})
	require.NoError(t, err)

	assert.Equal("0.0.0.0:8080", cfg.Addr)
	assert.Equal(DriverSocketCAN, cfg.Driver)
	assert.Equal("can0", cfg.CANInterface)
	assert.Equal("0.0.0.0:20000", cfg.CannelloniListen)
	assert.Equal(time.Second, cfg.SimInterval)
	assert.Equal(100, cfg.HistorySize)
	assert.Equal(100, cfg.BroadcastQueue)
	assert.Equal("./static", cfg.StaticDir)
	assert.Equal("canweb.frames", cfg.KafkaTopic)
	assert.Equal("canweb", cfg.KafkaGroupID)
	assert.False(cfg.KafkaEnabled())
	assert.False(cfg.OTelEnabled)
	assert.Equal("info", cfg.LogLevel)
	assert.Equal(5*time.Second, cfg.ShutdownTimeout)
}

func Test_Parse(t *testing.T) {
	assert := assert.New(t)

	cfg, err := Parse(map[string]string{
		"CANWEB_ADDR":             "127.0.0.1:9000",
		"CANWEB_DRIVER":           "sim",
		"CANWEB_SIM_INTERVAL":     "250ms",
		"CANWEB_HISTORY_SIZE":     "500",
		"CANWEB_KAFKA_BROKERS":    "kafka-1:9092,kafka-2:9092",
		"CANWEB_LOG_LEVEL":        "debug",
		"CANWEB_OTEL_ENABLED":     "true",
		"CANWEB_SHUTDOWN_TIMEOUT": "1s",
	})
	require.NoError(t, err)

	assert.Equal("127.0.0.1:9000", cfg.Addr)
	assert.Equal(DriverSimulator, cfg.Driver)
	assert.Equal(250*time.Millisecond, cfg.SimInterval)
	assert.Equal(500, cfg.HistorySize)
	assert.Equal([]string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(cfg.KafkaEnabled())
	assert.True(cfg.OTelEnabled)
	assert.Equal(time.Second, cfg.ShutdownTimeout)
}

func Test_Parse_Invalid(t *testing.T) {
	assert := assert.New(t)

	_, err := Parse(map[string]string{"CANWEB_HISTORY_SIZE": "many"})
	assert.ErrorIs(err, ErrParsingConfig)

	_, err = Parse(map[string]string{"CANWEB_DRIVER": "lin"})
	assert.ErrorIs(err, ErrInvalidConfig)

	_, err = Parse(map[string]string{"CANWEB_HISTORY_SIZE": "0"})
	assert.ErrorIs(err, ErrInvalidConfig)

	_, err = Parse(map[string]string{"CANWEB_BROADCAST_QUEUE": "-1"})
	assert.ErrorIs(err, ErrInvalidConfig)

	_, err = Parse(map[string]string{"CANWEB_LOG_LEVEL": "verbose"})
	assert.ErrorIs(err, ErrInvalidConfig)

	_, err = Parse(map[string]string{"CANWEB_SHUTDOWN_TIMEOUT": "0s"})
	assert.ErrorIs(err, ErrInvalidConfig)

	_, err = Parse(map[string]string{"CANWEB_DRIVER": "kafka"})
	assert.ErrorIs(err, ErrInvalidConfig)
}

func Test_Parse_KafkaDriver(t *testing.T) {
	assert := assert.New(t)

	cfg, err := Parse(map[string]string{
		"CANWEB_DRIVER":         "kafka",
		"CANWEB_KAFKA_BROKERS":  "kafka-1:9092",
		"CANWEB_KAFKA_GROUP_ID": "replay",
	})
	require.NoError(t, err)

	assert.Equal(DriverKafka, cfg.Driver)
	assert.Equal("replay", cfg.KafkaGroupID)

	// Replayed frames are not mirrored back to the topic they come from
	assert.False(cfg.KafkaEnabled())
}

func Test_Load_DotEnv(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CANWEB_DRIVER=cannelloni\nCANWEB_CANNELLONI_PEER=10.0.0.2:20000\n"), 0o600))

	t.Chdir(dir)
	t.Cleanup(func() {
		os.Unsetenv("CANWEB_DRIVER")
		os.Unsetenv("CANWEB_CANNELLONI_PEER")
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(DriverCannelloni, cfg.Driver)
	assert.Equal("10.0.0.2:20000", cfg.CannelloniPeer)
}
