package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	tempDir string
}

func (s *ConfigSuite) SetupTest() {
	s.tempDir = s.T().TempDir()
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultListenAddr, cfg.ListenAddr)
	s.Equal(DefaultStore, cfg.Store)
	s.Equal(DefaultMaxTokens, cfg.Azure.MaxTokens)
	s.Equal(int64(1490), cfg.Prices["basic"])
	s.Equal(int64(2490), cfg.Prices["pro"])
}

func (s *ConfigSuite) TestLoadYAML() {
	path := filepath.Join(s.tempDir, "config.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(`
listen_addr: ":9000"
store: redis
redis_addr: "redis-prod:6379"
azure:
  deployment: gpt-4o
prices:
  basic: 990
`), 0o644))

	cfg, err := Load(path)
	s.Require().NoError(err)

	s.Equal(":9000", cfg.ListenAddr)
	s.Equal("redis", cfg.Store)
	s.Equal("redis-prod:6379", cfg.RedisAddr)
	s.Equal("gpt-4o", cfg.Azure.Deployment)
	s.Equal(int64(990), cfg.Prices["basic"])
	// Untouched values keep their defaults.
	s.Equal(DefaultBaseURL, cfg.BaseURL)
	s.Equal(DefaultMaxTokens, cfg.Azure.MaxTokens)
}

func (s *ConfigSuite) TestEnvOverridesFile() {
	path := filepath.Join(s.tempDir, "config.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("listen_addr: \":9000\"\n"), 0o644))

	s.T().Setenv("MIETCHECK_LISTEN_ADDR", ":7000")
	s.T().Setenv("AZURE_OPENAI_DEPLOYMENT", "gpt-4o-mini")
	s.T().Setenv("SMTP_PORT", "2525")

	cfg, err := Load(path)
	s.Require().NoError(err)

	s.Equal(":7000", cfg.ListenAddr)
	s.Equal("gpt-4o-mini", cfg.Azure.Deployment)
	s.Equal(2525, cfg.SMTP.Port)
}

func (s *ConfigSuite) TestLoadRejectsUnknownStore() {
	path := filepath.Join(s.tempDir, "config.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("store: etcd\n"), 0o644))

	_, err := Load(path)
	s.Error(err)
}

func (s *ConfigSuite) TestLoadMissingFile() {
	_, err := Load(filepath.Join(s.tempDir, "nope.yaml"))
	s.Error(err)
}

func (s *ConfigSuite) TestGetSet() {
	orig := Get()
	defer Set(orig)

	cfg := Default()
	cfg.ListenAddr = ":1234"
	Set(cfg)

	s.Equal(":1234", Get().ListenAddr)
}
