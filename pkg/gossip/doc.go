// Package gossip implements an epidemic message-dissemination node for
// zephyrgossip. A Node owns one UDP socket and a static peer list; locally
// produced messages are pushed to a random subset of peers, and novel
// messages received from peers are relayed onward to another random subset.
//
// Admission control happens in two tiers on the receive path: a node-wide
// token bucket guards the socket, then each originating sender gets its own
// stricter bucket. A time-bounded seen cache suppresses duplicates. Both the
// seen cache and the sender table are swept by background goroutines so
// neither grows without bound.
//
// Typical usage:
//
//	n, err := gossip.New(gossip.Config{ID: 1, BindAddr: ":9000", Peers: peers}, gossip.WithLogger(log))
//	if err != nil { ... }
//	n.Start(ctx)
//	defer n.Close()
//	err = n.Broadcast(ctx, []byte("hello"), 1)
//
// Delivery is best-effort and unordered.
package gossip
