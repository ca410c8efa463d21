package discovery

import (
	"context"
	"errors"
	"slices"
	"testing"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// fakeKV serves a fixed Get response; every other KV method panics.
type fakeKV struct {
	clientv3.KV
	kvs     []*mvccpb.KeyValue
	err     error
	gotKey  string
	gotOpts int
}

func (f *fakeKV) Get(_ context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	f.gotKey = key
	f.gotOpts = len(opts)
	if f.err != nil {
		return nil, f.err
	}
	return &clientv3.GetResponse{Kvs: f.kvs}, nil
}

func TestLoadPeers(t *testing.T) {
	kv := &fakeKV{kvs: []*mvccpb.KeyValue{
		{Key: []byte("/zephyr/nodes/3"), Value: []byte("10.0.0.3:9000")},
		{Key: []byte("/zephyr/nodes/1"), Value: []byte("10.0.0.1:9000")},
		{Key: []byte("/zephyr/nodes/2"), Value: []byte("  ")},
	}}

	peers, err := LoadPeers(context.Background(), kv, "/zephyr/nodes/")
	if err != nil {
		t.Fatalf("LoadPeers: %v", err)
	}
	if kv.gotKey != "/zephyr/nodes/" || kv.gotOpts != 1 {
		t.Fatalf("Get(%q, %d opts), want prefix query", kv.gotKey, kv.gotOpts)
	}
	want := []Peer{{"1", "10.0.0.1:9000"}, {"3", "10.0.0.3:9000"}}
	if !slices.Equal(peers, want) {
		t.Fatalf("peers = %v, want %v", peers, want)
	}
	if got := Addrs(peers, "3"); !slices.Equal(got, []string{"10.0.0.1:9000"}) {
		t.Fatalf("Addrs = %v", got)
	}
}

func TestLoadPeersError(t *testing.T) {
	boom := errors.New("unavailable")
	if _, err := LoadPeers(context.Background(), &fakeKV{err: boom}, "/p/"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}
