// Package config parses node settings from the command line and environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/ryandielhenn/zephyrgossip/internal/producer"
	"github.com/ryandielhenn/zephyrgossip/pkg/gossip"
)

type Config struct {
	ID          uint64        `long:"id" env:"SELF_ID" required:"true" description:"Numeric id of this node"`
	Bind        string        `long:"bind" env:"SELF_ADDR" required:"true" description:"host:port of the gossip UDP socket"`
	Peers       []string      `long:"peer" env:"PEERS" env-delim:"," description:"Peer host:port; repeat for each peer"`
	Fanout      int           `long:"fanout" env:"FANOUT" default:"3" description:"Peers per originated message"`
	RelayFanout int           `long:"relay-fanout" env:"RELAY_FANOUT" default:"3" description:"Peers per relayed message"`
	SendTimeout time.Duration `long:"send-timeout" default:"1s" description:"Write deadline for each datagram"`
	Framing     string        `long:"framing" default:"chunk" choice:"chunk" choice:"lines" description:"How stdin is cut into messages"`
	DefaultPort string        `long:"default-port" default:"9000" description:"Port assumed for peers given without one"`

	Admin string `long:"admin" env:"ADMIN_ADDR" description:"Listen address for the HTTP admin endpoints; empty disables"`

	EtcdEndpoints []string `long:"etcd" env:"ETCD_ENDPOINTS" env-delim:"," description:"etcd endpoint to read the peer list from at startup"`
	EtcdPrefix    string   `long:"etcd-prefix" default:"/zephyr/nodes/" description:"Key prefix holding id -> host:port peer entries"`

	LogDev bool `long:"log-dev" description:"Human-readable debug logging"`
}

// ErrHelp is returned by Load when --help was requested.
var ErrHelp = errors.New("help requested")

// Load parses args (without the program name) and the environment.
func Load(args []string) (*Config, string, error) {
	var cfg Config
	p := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := p.ParseArgs(args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return nil, ferr.Message, ErrHelp
		}
		return nil, "", err
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	return &cfg, "", nil
}

func (c *Config) normalize() error {
	if c.Fanout <= 0 {
		return fmt.Errorf("fanout must be positive, got %d", c.Fanout)
	}
	if c.RelayFanout <= 0 {
		return fmt.Errorf("relay-fanout must be positive, got %d", c.RelayFanout)
	}
	if _, _, err := net.SplitHostPort(c.Bind); err != nil {
		return fmt.Errorf("bind %q: %w", c.Bind, err)
	}
	peers, err := NormalizePeers(c.Peers, c.DefaultPort)
	if err != nil {
		return err
	}
	c.Peers = peers
	return nil
}

// NormalizePeers trims, defaults the port of and validates each address,
// skipping blanks.
func NormalizePeers(in []string, defPort string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		hp := NormalizeHostPort(p, defPort)
		host, port, err := net.SplitHostPort(hp)
		if err != nil || host == "" || port == "" {
			return nil, fmt.Errorf("%w %q", gossip.ErrBadPeerAddress, p)
		}
		out = append(out, hp)
	}
	return out, nil
}

// NormalizeHostPort cuts the http:// https:// prefixes from the input address
// and adds a default port.
func NormalizeHostPort(addr, defPort string) string {
	if rest, ok := strings.CutPrefix(addr, "http://"); ok {
		addr = rest
	} else if rest, ok := strings.CutPrefix(addr, "https://"); ok {
		addr = rest
	}

	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}

	return net.JoinHostPort(strings.Trim(addr, "[]"), defPort)
}

func (c *Config) FramingMode() producer.Framing {
	return producer.Framing(c.Framing)
}

// Gossip returns the node configuration derived from c.
func (c *Config) Gossip() gossip.Config {
	return gossip.Config{
		ID:          c.ID,
		BindAddr:    c.Bind,
		Peers:       c.Peers,
		Fanout:      c.Fanout,
		RelayFanout: c.RelayFanout,
		SendTimeout: c.SendTimeout,
	}
}
