package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/stretchr/testify/suite"
)

// fastSimConfig keeps the simulated reader and the poller quick enough for tests.
const fastSimConfig = `
session:
  poll_interval: 20ms
  request_timeout: 2s
driver:
  kind: sim
  ble:
    scan_timeout: 2s
  sim:
    latency: 1ms
    tag_interval: 2ms
`

// CommandTestSuite runs uhfctl commands against the simulated reader.
type CommandTestSuite struct {
	suite.Suite
	configPath string
}

func (s *CommandTestSuite) SetupTest() {
	s.configPath = filepath.Join(s.T().TempDir(), "uhfsession.yaml")
	s.Require().NoError(os.WriteFile(s.configPath, []byte(fastSimConfig), 0o600))
}

// ExecuteCommand runs uhfctl with args and returns its combined output.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	return s.ExecuteCommandContext(context.Background(), args...)
}

func (s *CommandTestSuite) ExecuteCommandContext(ctx context.Context, args ...string) (string, error) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--config", s.configPath}, args...))
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}
