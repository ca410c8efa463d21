package gossip

import (
	"errors"
	"net/netip"
	"testing"
)

func mustAddrs(t *testing.T, ss ...string) []netip.AddrPort {
	t.Helper()
	out := make([]netip.AddrPort, len(ss))
	for i, s := range ss {
		out[i] = netip.MustParseAddrPort(s)
	}
	return out
}

func TestSamplePeersBound(t *testing.T) {
	peers := mustAddrs(t, "10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1", "10.0.0.4:1")
	for k := 0; k <= 6; k++ {
		got := samplePeers(peers, k, netip.AddrPort{})
		want := min(k, len(peers))
		if len(got) != want {
			t.Fatalf("k=%d: got %d peers, want %d", k, len(got), want)
		}
		seen := map[netip.AddrPort]bool{}
		for _, p := range got {
			if seen[p] {
				t.Fatalf("k=%d: duplicate target %s", k, p)
			}
			seen[p] = true
		}
	}
}

func TestSamplePeersDoesNotReorderInput(t *testing.T) {
	peers := mustAddrs(t, "10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1")
	orig := append([]netip.AddrPort(nil), peers...)
	for range 50 {
		samplePeers(peers, 2, netip.AddrPort{})
	}
	for i := range peers {
		if peers[i] != orig[i] {
			t.Fatalf("input reordered at %d", i)
		}
	}
}

func TestSamplePeersExcludesSource(t *testing.T) {
	peers := mustAddrs(t, "10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1")
	skip := peers[1]
	for range 200 {
		got := samplePeers(peers, 3, skip)
		if len(got) != 2 {
			t.Fatalf("got %d targets, want 2", len(got))
		}
		for _, p := range got {
			if p == skip {
				t.Fatalf("source %s selected", skip)
			}
		}
	}
}

func TestSamplePeersRoughlyUniform(t *testing.T) {
	// Not a strict test: every peer should be picked a fair share of the time.
	peers := mustAddrs(t, "10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1", "10.0.0.4:1")
	counts := map[netip.AddrPort]int{}
	const N = 8000
	for range N {
		for _, p := range samplePeers(peers, 2, netip.AddrPort{}) {
			counts[p]++
		}
	}
	expect := N * 2 / len(peers)
	for _, p := range peers {
		if c := counts[p]; c < expect*8/10 || c > expect*12/10 {
			t.Fatalf("peer %s picked %d times, expected about %d", p, c, expect)
		}
	}
}

func TestResolvePeers(t *testing.T) {
	got, err := resolvePeers([]string{"127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9001"})
	if err != nil {
		t.Fatalf("resolvePeers: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d peers, want 2 after dedup", len(got))
	}

	for _, bad := range []string{"nonsense", "127.0.0.1", "127.0.0.1:0", "127.0.0.1:notaport", ":9000"} {
		if _, err := resolvePeers([]string{bad}); !errors.Is(err, ErrBadPeerAddress) {
			t.Fatalf("resolvePeers(%q) err = %v, want ErrBadPeerAddress", bad, err)
		}
	}
}
