package gossip

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgossip/internal/telemetry"
)

// resolvePeers turns host:port strings into socket addresses, dropping
// duplicates.
func resolvePeers(peers []string) ([]netip.AddrPort, error) {
	out := make([]netip.AddrPort, 0, len(peers))
	seen := make(map[netip.AddrPort]struct{}, len(peers))
	for _, p := range peers {
		ua, err := net.ResolveUDPAddr("udp", p)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrBadPeerAddress, p, err)
		}
		ap := unmap(ua.AddrPort())
		if !ap.IsValid() || ap.Port() == 0 {
			return nil, fmt.Errorf("%w %q: missing host or port", ErrBadPeerAddress, p)
		}
		if _, dup := seen[ap]; dup {
			continue
		}
		seen[ap] = struct{}{}
		out = append(out, ap)
	}
	return out, nil
}

// samplePeers picks min(k, eligible) distinct peers uniformly at random,
// where eligible excludes skip. It runs a partial Fisher-Yates shuffle on a
// copy, so peers itself is never reordered.
func samplePeers(peers []netip.AddrPort, k int, skip netip.AddrPort) []netip.AddrPort {
	pool := make([]netip.AddrPort, 0, len(peers))
	for _, p := range peers {
		if p != skip {
			pool = append(pool, p)
		}
	}
	if k > len(pool) {
		k = len(pool)
	}
	for i := 0; i < k; i++ {
		j := i + rand.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

// sendAll writes data to every target with a per-send deadline. Failures are
// independent; it returns how many sends failed and the combined error.
func (n *Node) sendAll(ctx context.Context, data []byte, targets []netip.AddrPort) (int, error) {
	var errs error
	failed := 0
	for i, peer := range targets {
		if err := ctx.Err(); err != nil {
			failed += len(targets) - i
			errs = multierr.Append(errs, err)
			break
		}
		if err := n.sendTo(data, peer); err != nil {
			failed++
			errs = multierr.Append(errs, fmt.Errorf("send to %s: %w", peer, err))
			telemetry.SendFailures.Inc()
			n.log.Warn("send failed", zap.Stringer("peer", peer), zap.Error(err))
		}
	}
	return failed, errs
}

func (n *Node) sendTo(data []byte, peer netip.AddrPort) error {
	if n.cfg.SendTimeout > 0 {
		// The deadline is socket-wide; concurrent senders each push it
		// forward, which still bounds every individual write.
		if err := n.conn.SetWriteDeadline(time.Now().Add(n.cfg.SendTimeout)); err != nil {
			return err
		}
	}
	_, err := n.conn.WriteToUDPAddrPort(data, peer)
	return err
}

func unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
