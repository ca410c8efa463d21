// Package discovery reads the static peer list from etcd at startup. The
// list is read once; later changes in etcd do not affect a running node.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func NewClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// Peer is one entry under the peer prefix: prefix/<id> -> host:port.
type Peer struct {
	ID   string
	Addr string
}

// LoadPeers returns every peer stored under prefix, sorted by id. Entries
// with an empty value are skipped.
func LoadPeers(ctx context.Context, kv clientv3.KV, prefix string) ([]Peer, error) {
	resp, err := kv.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd get %q: %w", prefix, err)
	}
	peers := make([]Peer, 0, len(resp.Kvs))
	for _, item := range resp.Kvs {
		if p, ok := peerFromKV(prefix, item); ok {
			peers = append(peers, p)
		}
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers, nil
}

func peerFromKV(prefix string, item *mvccpb.KeyValue) (Peer, bool) {
	addr := strings.TrimSpace(string(item.Value))
	if addr == "" {
		return Peer{}, false
	}
	return Peer{ID: strings.TrimPrefix(string(item.Key), prefix), Addr: addr}, true
}

// Addrs returns just the addresses of peers, minus any whose id is self.
func Addrs(peers []Peer, self string) []string {
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		if p.ID != self {
			out = append(out, p.Addr)
		}
	}
	return out
}
