package transport

import (
	"fmt"
	"strings"

	"github.com/fenio/zed-csi/pkg/types"
)

// Kind identifies which transport variant a Config describes.
type Kind int

const (
	Local Kind = iota
	Chroot
	SSH
)

func (k Kind) String() string {
	switch k {
	case Local:
		return "local"
	case Chroot:
		return "chroot"
	case SSH:
		return "ssh"
	default:
		return "unknown"
	}
}

// SSHConfig carries the connection details for the SSH transport variant.
type SSHConfig struct {
	User       string
	Host       string
	Port       string
	PrivateKey string
}

// Config is a tagged union describing how a Transport should reach the
// storage host: directly on the local machine, inside a chroot on the local
// machine, or over SSH to a remote machine. Sudo prefixes the framed command
// in every variant.
type Config struct {
	Kind       Kind
	Sudo       bool
	ChrootPath string
	SSH        *SSHConfig
}

// FromSecrets builds a Config from the CSI secrets map the façade receives on
// each request. The node's static control-mode configuration is converted
// to a Config by pkg/config instead. Recognized keys: "type" ("local", "chroot", or
// "ssh"; defaults to "local" when absent), "sudo" (lenient bool), "path"
// (chroot root, required when type=chroot), "sshUser", "sshHost", "sshPort",
// "sshKey" (private key PEM with literal "\n" sequences decoded to real
// newlines, required when type=ssh). Every required key missing for the
// selected type fails with a "<key> not found" error.
func FromSecrets(secrets map[string]string) (Config, error) {
	kindStr := secrets["type"]
	if kindStr == "" {
		kindStr = "local"
	}

	sudo := types.ParseLenientBool(secrets["sudo"])

	switch kindStr {
	case "local":
		return Config{Kind: Local, Sudo: sudo}, nil
	case "chroot":
		path, ok := secrets["path"]
		if !ok || path == "" {
			return Config{}, missingKeyError("path")
		}
		return Config{Kind: Chroot, Sudo: sudo, ChrootPath: path}, nil
	case "ssh":
		user, ok := secrets["sshUser"]
		if !ok || user == "" {
			return Config{}, missingKeyError("sshUser")
		}
		host, ok := secrets["sshHost"]
		if !ok || host == "" {
			return Config{}, missingKeyError("sshHost")
		}
		port, ok := secrets["sshPort"]
		if !ok || port == "" {
			return Config{}, missingKeyError("sshPort")
		}
		key, ok := secrets["sshKey"]
		if !ok || key == "" {
			return Config{}, missingKeyError("sshKey")
		}
		key = strings.ReplaceAll(key, `\n`, "\n")
		return Config{
			Kind: SSH,
			Sudo: sudo,
			SSH: &SSHConfig{
				User:       user,
				Host:       host,
				Port:       port,
				PrivateKey: key,
			},
		}, nil
	default:
		return Config{}, fmt.Errorf("transport: unknown type %q", kindStr)
	}
}

// buildCommand applies the framing rule common to every variant: an optional
// "sudo " prefix, followed by an optional "chroot <path> " prefix for the
// Chroot variant, followed by the caller's command unchanged.
func buildCommand(cfg Config, cmd string) string {
	var b strings.Builder
	if cfg.Sudo {
		b.WriteString("sudo ")
	}
	if cfg.Kind == Chroot {
		fmt.Fprintf(&b, "chroot %s ", cfg.ChrootPath)
	}
	b.WriteString(cmd)
	return b.String()
}
