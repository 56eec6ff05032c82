package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sidecus/raftcore/pkg/raft"
)

// nodeConfig is the on-disk shape of a raftnode YAML config file, grounded
// on cuemby-warren's manager.Config/worker.Config pattern (a plain struct
// decoded once at startup, no hot reload).
type nodeConfig struct {
	// Self is this node's opaque identity. If empty, a fresh one is
	// generated with uuid and printed so it can be recorded for future
	// restarts (a node's identity must stay stable across restarts to
	// keep its place in GroupMembers).
	Self string `yaml:"self"`
	// GroupID names the Raft group this node belongs to.
	GroupID string `yaml:"groupID"`
	// ListenAddr is this node's gRPC bind address.
	ListenAddr string `yaml:"listenAddr"`
	// Peers maps every other group member's Self identity to its dial
	// address. This node's own entry, if present, is ignored.
	Peers map[string]string `yaml:"peers"`
	// DataDir holds the bbolt file when Store is "bolt".
	DataDir string `yaml:"dataDir"`
	// Store selects the durable Store implementation: "bolt" or "nop".
	Store string `yaml:"store"`
	// LogLevel is one of error/warning/info/trace.
	LogLevel string `yaml:"logLevel"`

	Timing timingConfig `yaml:"timing"`
}

type timingConfig struct {
	ElectionTimeoutMillis  int `yaml:"electionTimeoutMillis"`
	HeartbeatPeriodMillis  int `yaml:"heartbeatPeriodMillis"`
	HeartbeatTimeoutMillis int `yaml:"heartbeatTimeoutMillis"`
}

func loadConfig(path string) (*nodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := &nodeConfig{Store: "bolt", LogLevel: "info"}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Self == "" {
		cfg.Self = uuid.NewString()
		fmt.Printf("no self identity configured, generated %s (record this in the config file to persist identity across restarts)\n", cfg.Self)
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("config: groupID is required")
	}
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("config: listenAddr is required")
	}
	return cfg, nil
}

// members returns every group member's Endpoint, including Self.
func (c *nodeConfig) members() []raft.Endpoint {
	out := []raft.Endpoint{raft.Endpoint(c.Self)}
	for peer := range c.Peers {
		if peer == c.Self {
			continue
		}
		out = append(out, raft.Endpoint(peer))
	}
	return out
}

// peerAddrs returns the dial-address map keyed by Endpoint, for
// internal/transport/grpc.NewTransport.
func (c *nodeConfig) peerAddrs() map[raft.Endpoint]string {
	out := make(map[raft.Endpoint]string, len(c.Peers))
	for ep, addr := range c.Peers {
		if ep == c.Self {
			continue
		}
		out[raft.Endpoint(ep)] = addr
	}
	return out
}

func (c *nodeConfig) raftConfig() raft.Config {
	cfg := raft.DefaultConfig()
	if c.Timing.ElectionTimeoutMillis > 0 {
		cfg.LeaderElectionTimeout = time.Duration(c.Timing.ElectionTimeoutMillis) * time.Millisecond
	}
	if c.Timing.HeartbeatPeriodMillis > 0 {
		cfg.LeaderHeartbeatPeriod = time.Duration(c.Timing.HeartbeatPeriodMillis) * time.Millisecond
	}
	if c.Timing.HeartbeatTimeoutMillis > 0 {
		cfg.LeaderHeartbeatTimeout = time.Duration(c.Timing.HeartbeatTimeoutMillis) * time.Millisecond
	}
	return cfg
}
