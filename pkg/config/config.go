// Package config loads the node driver's static configuration file
// (/etc/zed-csi.yml by default): the control-mode transport settings used
// for every operation the node service performs on its own storage host,
// as opposed to the controller service's per-request transport built from
// CreateVolume/NodeStageVolume secrets (see pkg/transport.FromSecrets).
//
// YAML decoding follows the pack's own config-loading idiom (gopkg.in/
// yaml.v3, plain struct tags, unmarshal straight from the file) rather
// than the teacher's own WebSocket-only client, which has no on-disk
// config of this shape to draw from.
package config

import (
	"fmt"
	"os"

	"github.com/fenio/zed-csi/pkg/transport"
	"github.com/fenio/zed-csi/pkg/types"
	"gopkg.in/yaml.v3"
)

// ControlMode mirrors the shape of the CreateVolume/NodeStageVolume
// "secrets" transport parameters (pkg/transport.Config), expressed as YAML
// struct tags for the node's static configuration file.
type ControlMode struct {
	Type       string            `yaml:"type"`
	Sudo       types.LenientBool `yaml:"sudo"`
	Path       string            `yaml:"path"`
	User       string            `yaml:"user"`
	Host       string            `yaml:"host"`
	Port       string            `yaml:"port"`
	PrivateKey string            `yaml:"private_key"`
}

// Node holds the node-service section of the configuration file.
type Node struct {
	ControlMode ControlMode `yaml:"control_mode"`
}

// Config is the full contents of the driver's configuration file.
type Config struct {
	Node Node `yaml:"node"`
}

// Load reads and parses path. A missing file is not an error: the node
// service falls back to a Local transport with no sudo, matching the
// teacher's tolerant-of-absent-config posture for optional files.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// TransportConfig converts the node's control_mode section into a
// pkg/transport.Config, the same type transport.FromSecrets produces for
// the controller's per-request path.
func (c *Config) TransportConfig() (transport.Config, error) {
	cm := c.Node.ControlMode

	kindStr := cm.Type
	if kindStr == "" {
		kindStr = "local"
	}
	sudo := cm.Sudo.Bool()

	switch kindStr {
	case "local":
		return transport.Config{Kind: transport.Local, Sudo: sudo}, nil
	case "chroot":
		if cm.Path == "" {
			return transport.Config{}, fmt.Errorf("config: node.control_mode.path is required for type chroot")
		}
		return transport.Config{Kind: transport.Chroot, Sudo: sudo, ChrootPath: cm.Path}, nil
	case "ssh":
		if cm.User == "" {
			return transport.Config{}, fmt.Errorf("config: node.control_mode.user is required for type ssh")
		}
		if cm.Host == "" {
			return transport.Config{}, fmt.Errorf("config: node.control_mode.host is required for type ssh")
		}
		if cm.Port == "" {
			return transport.Config{}, fmt.Errorf("config: node.control_mode.port is required for type ssh")
		}
		if cm.PrivateKey == "" {
			return transport.Config{}, fmt.Errorf("config: node.control_mode.private_key is required for type ssh")
		}
		return transport.Config{
			Kind: transport.SSH,
			Sudo: sudo,
			SSH: &transport.SSHConfig{
				User:       cm.User,
				Host:       cm.Host,
				Port:       cm.Port,
				PrivateKey: cm.PrivateKey,
			},
		}, nil
	default:
		return transport.Config{}, fmt.Errorf("config: unknown node.control_mode.type %q", kindStr)
	}
}
