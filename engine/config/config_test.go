package config

import (
	"testing"

	"fmt"

	"os"

	"time"

	"github.com/bmizerany/assert"
	"github.com/mirrorworlds/worldmesh/engine/wmlog"
)

func init() {
	SetConfigFile("../../worldmesh.ini.sample")
}

func TestLoad(t *testing.T) {
	config := Get()
	wmlog.Debugf("worldmesh config: \n%s", DumpPretty(config))
	if config == nil {
		t.FailNow()
	}
	if config.Server.ServerName == "" {
		t.Errorf("server name not found")
	}
	if config.Server.CrossServer && config.Server.WorldsServer == "" {
		t.Errorf("worlds server not found")
	}
	wmlog.Infof("read worldmesh config: %v", config)
}

func TestReload(t *testing.T) {
	Get()
	config := Reload()
	wmlog.Debugf("worldmesh config: \n%s", DumpPretty(config))
}

func TestGetStorage(t *testing.T) {
	cfg := GetStorage()
	if cfg == nil {
		t.Errorf("storage config not found")
	}
	wmlog.Infof("storage config:")
	fmt.Fprintf(os.Stderr, "%s\n", DumpPretty(cfg))
}

func TestGetProxy(t *testing.T) {
	cfg := GetProxy()
	assert.T(t, cfg != nil, "proxy config is nil")
	if cfg.Port == 0 {
		t.Errorf("proxy port not found")
	}
	assert.Equal(t, cfg.ChannelName, "wmesh:main")
}

func TestGetRelocation(t *testing.T) {
	cfg := GetRelocation()
	assert.T(t, cfg != nil, "relocation config is nil")
	assert.Equal(t, cfg.MaxAttempts, 3)
	assert.Equal(t, cfg.RetryDelay, 2000*time.Millisecond)
	assert.Equal(t, cfg.SettleDelay, 500*time.Millisecond)
}

func TestGetDefaults(t *testing.T) {
	cfg := GetDefaults()
	assert.T(t, cfg != nil, "defaults config is nil")
	assert.Equal(t, cfg.GameMode, "survival")
	assert.Equal(t, cfg.TickSpeed, int32(3))
}
