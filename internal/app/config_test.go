package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConfString(t *testing.T) {
	require.Equal(t, "{camera: {host: 10.0.0.5}}", string(parseConfString("camera.host=10.0.0.5")))
	require.Equal(t, "{log: {level: trace}}", string(parseConfString("log.level=trace")))
	require.Nil(t, parseConfString("camera=10.0.0.5"))
	require.Nil(t, parseConfString("actionrelay.yaml"))
}

func TestInitConfig(t *testing.T) {
	prevConfigs, prevPath := configs, ConfigPath
	t.Cleanup(func() {
		configs, ConfigPath = prevConfigs, prevPath
		delete(Info, "config_path")
	})
	configs, ConfigPath = nil, ""

	t.Setenv("CAMERA_PASS", "secret")

	path := filepath.Join(t.TempDir(), "actionrelay.yaml")
	data := "camera:\n  host: 192.168.100.1\n  password: ${CAMERA_PASS}\n"
	require.Nil(t, os.WriteFile(path, []byte(data), 0644))

	initConfig(flagConfig{path, `{"camera": {"port": 7000}}`, "camera.username=root", ""})

	var conf struct {
		Camera struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"camera"`
	}
	conf.Camera.Port = 6666
	conf.Camera.Username = "admin"

	LoadConfig(&conf)

	require.Equal(t, "192.168.100.1", conf.Camera.Host)
	require.Equal(t, 7000, conf.Camera.Port)
	require.Equal(t, "root", conf.Camera.Username)
	require.Equal(t, "secret", conf.Camera.Password)
	require.Equal(t, path, ConfigPath)
	require.Equal(t, path, Info["config_path"])
}

func TestFlagConfig(t *testing.T) {
	var c flagConfig
	require.Nil(t, c.Set("a.yaml"))
	require.Nil(t, c.Set("log.level=debug"))
	require.Equal(t, "a.yaml log.level=debug", c.String())
}
