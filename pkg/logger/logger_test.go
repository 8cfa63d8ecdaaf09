package logger

import (
	"os"
	"path/filepath"
	"testing"

	"tradectl/conf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	InitLogger(&conf.LogConfig{Level: "debug", FileName: path, MaxSize: 1}, "tradectl-test")

	Info("order placed", Pair("symbol", "BTC-USDT-SWAP"), Pair("qty", 0.01))
	Infof("stop ratcheted to %.2f", 106.0)
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "order placed")
	assert.Contains(t, string(data), "BTC-USDT-SWAP")
	assert.Contains(t, string(data), "stop ratcheted to 106.00")
	assert.Contains(t, string(data), "tradectl-test")
}
