package gossip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgossip/internal/telemetry"
	"github.com/ryandielhenn/zephyrgossip/pkg/ratelimit"
)

const (
	DefaultFanout      = 3
	DefaultRelayFanout = 3
	DefaultSendTimeout = time.Second

	DefaultGlobalRate  = 500
	DefaultGlobalBurst = 1000
	DefaultSenderRate  = 50
	DefaultSenderBurst = 100

	DefaultSeenTTL     = 30 * time.Second
	DefaultSeenSweep   = 5 * time.Second
	DefaultSenderTTL   = 300 * time.Second
	DefaultSenderSweep = 60 * time.Second
)

// Config describes a node. ID and BindAddr are required; zero values
// elsewhere fall back to the Default* constants.
type Config struct {
	ID       uint64
	BindAddr string
	Peers    []string

	Fanout      int // peers per originated message
	RelayFanout int // peers per relayed message
	SendTimeout time.Duration

	GlobalRate, GlobalBurst uint64
	SenderRate, SenderBurst uint64

	SeenTTL, SeenSweep     time.Duration
	SenderTTL, SenderSweep time.Duration
}

func (c *Config) setDefaults() {
	if c.Fanout <= 0 {
		c.Fanout = DefaultFanout
	}
	if c.RelayFanout <= 0 {
		c.RelayFanout = DefaultRelayFanout
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.GlobalRate == 0 {
		c.GlobalRate = DefaultGlobalRate
	}
	if c.GlobalBurst == 0 {
		c.GlobalBurst = DefaultGlobalBurst
	}
	if c.SenderRate == 0 {
		c.SenderRate = DefaultSenderRate
	}
	if c.SenderBurst == 0 {
		c.SenderBurst = DefaultSenderBurst
	}
	if c.SeenTTL == 0 {
		c.SeenTTL = DefaultSeenTTL
	}
	if c.SeenSweep == 0 {
		c.SeenSweep = DefaultSeenSweep
	}
	if c.SenderTTL == 0 {
		c.SenderTTL = DefaultSenderTTL
	}
	if c.SenderSweep == 0 {
		c.SenderSweep = DefaultSenderSweep
	}
}

type Option func(*Node)

func WithLogger(l *zap.Logger) Option {
	return func(n *Node) { n.log = l }
}

// WithClock replaces time.Now for rate limiting and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(n *Node) { n.now = now }
}

// Node is a gossip participant. All shared state (global bucket, sender
// table, seen cache) is owned by the node and guarded by its own lock; no
// lock is ever held across a socket operation.
type Node struct {
	id    uint64
	cfg   Config
	conn  *net.UDPConn
	peers []netip.AddrPort
	log   *zap.Logger
	now   func() time.Time

	global  *ratelimit.TokenBucket
	senders *SenderTable
	seen    *SeenCache

	started   atomic.Bool
	closed    atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New resolves the peer list and binds the socket. Bad addresses are
// reported here, never at run time.
func New(cfg Config, opts ...Option) (*Node, error) {
	cfg.setDefaults()
	n := &Node{
		id:  cfg.ID,
		cfg: cfg,
		log: zap.NewNop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}

	laddr, err := net.ResolveUDPAddr("udp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBind, cfg.BindAddr, err)
	}
	// Resolve peers before binding so a bad peer list never leaks a socket.
	n.peers, err = resolvePeers(cfg.Peers)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBind, cfg.BindAddr, err)
	}
	n.conn = conn

	self := unmap(conn.LocalAddr().(*net.UDPAddr).AddrPort())
	n.peers = slices.DeleteFunc(n.peers, func(p netip.AddrPort) bool { return p == self })

	n.global = ratelimit.New(cfg.GlobalRate, cfg.GlobalBurst, ratelimit.WithClock(n.now))
	n.senders = NewSenderTable(cfg.SenderTTL, cfg.SenderRate, cfg.SenderBurst, n.now)
	n.seen = NewSeenCache(cfg.SeenTTL, n.now)

	n.log = n.log.With(zap.Uint64("node", cfg.ID))
	n.log.Info("node bound",
		zap.Stringer("addr", conn.LocalAddr()),
		zap.Int("peers", len(n.peers)),
		zap.Int("fanout", cfg.Fanout),
		zap.Int("relay_fanout", cfg.RelayFanout))
	return n, nil
}

func (n *Node) ID() uint64 { return n.id }

func (n *Node) LocalAddr() net.Addr { return n.conn.LocalAddr() }

func (n *Node) Fanout() int { return n.cfg.Fanout }

func (n *Node) RelayFanout() int { return n.cfg.RelayFanout }

func (n *Node) Peers() []string {
	out := make([]string, len(n.peers))
	for i, p := range n.peers {
		out[i] = p.String()
	}
	return out
}

type Stats struct {
	SeenEntries    int    `json:"seen_entries"`
	TrackedSenders int    `json:"tracked_senders"`
	GlobalTokens   uint64 `json:"global_tokens"`
}

func (n *Node) Stats() Stats {
	return Stats{
		SeenEntries:    n.seen.Len(),
		TrackedSenders: n.senders.Len(),
		GlobalTokens:   n.global.Tokens(),
	}
}

// Broadcast originates a message: it derives the message id from the node
// id, seq and payload, then sends one datagram to each of min(Fanout, peers)
// distinct random peers. Individual send failures are logged; an error is
// returned only when every selected peer failed.
func (n *Node) Broadcast(ctx context.Context, payload []byte, seq uint64) error {
	if n.closed.Load() {
		return ErrClosed
	}
	env := Envelope{
		MessageID: MessageID(n.id, seq, payload),
		SenderID:  n.id,
		Payload:   payload,
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}

	targets := samplePeers(n.peers, n.cfg.Fanout, netip.AddrPort{})
	if len(targets) == 0 {
		n.log.Debug("broadcast with no peers", zap.Uint64("seq", seq))
		return nil
	}
	failed, errs := n.sendAll(ctx, data, targets)
	if failed == len(targets) {
		return &SendError{Attempted: len(targets), Err: errs}
	}
	telemetry.Originated.Inc()
	n.log.Debug("broadcast",
		zap.Uint64("msg_id", env.MessageID),
		zap.Uint64("seq", seq),
		zap.Int("targets", len(targets)),
		zap.Int("failed", failed))
	return nil
}

// Start launches the receive/relay loop and both sweepers, then returns.
// The tasks stop when ctx is done or Close is called.
func (n *Node) Start(ctx context.Context) error {
	if n.closed.Load() {
		return ErrClosed
	}
	if !n.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ctx, n.cancel = context.WithCancel(ctx)

	n.wg.Add(4)
	go func() {
		defer n.wg.Done()
		n.receiveLoop(ctx)
	}()
	go func() {
		defer n.wg.Done()
		n.sweepLoop(ctx, n.cfg.SeenSweep, telemetry.CacheSeen, n.seen.Sweep, n.seen.Len)
	}()
	go func() {
		defer n.wg.Done()
		n.sweepLoop(ctx, n.cfg.SenderSweep, telemetry.CacheSenders, n.senders.Sweep, n.senders.Len)
	}()
	go func() {
		defer n.wg.Done()
		<-ctx.Done()
		n.closeConn()
	}()
	return nil
}

// Close stops the background tasks and releases the socket.
func (n *Node) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	if n.cancel != nil {
		n.cancel()
	}
	err := n.closeConn()
	n.wg.Wait()
	n.log.Info("node closed")
	return err
}

func (n *Node) closeConn() error {
	var err error
	n.closeOnce.Do(func() { err = n.conn.Close() })
	return err
}

func (n *Node) receiveLoop(ctx context.Context) {
	buf := make([]byte, MaxDatagramSize)
	for {
		size, src, err := n.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			n.log.Debug("receive failed", zap.Error(err))
			continue
		}
		n.handleDatagram(ctx, buf[:size], unmap(src))
	}
}

// handleDatagram runs one datagram through admission control and relays it
// if it is novel. data is forwarded byte for byte.
func (n *Node) handleDatagram(ctx context.Context, data []byte, src netip.AddrPort) {
	telemetry.DatagramsReceived.Inc()

	if !n.global.Allow() {
		n.drop(telemetry.ReasonGlobalRate, src)
		return
	}
	env, err := DecodeEnvelope(data)
	if err != nil {
		n.drop(telemetry.ReasonMalformed, src, zap.Error(err))
		return
	}
	if !n.senders.Admit(env.SenderID) {
		n.drop(telemetry.ReasonSenderRate, src, zap.Uint64("sender", env.SenderID))
		return
	}
	if n.seen.IsDuplicateOrRecord(env.MessageID) {
		n.drop(telemetry.ReasonDuplicate, src, zap.Uint64("msg_id", env.MessageID))
		return
	}

	targets := samplePeers(n.peers, n.cfg.RelayFanout, src)
	failed, _ := n.sendAll(ctx, data, targets)
	telemetry.Relayed.Inc()
	n.log.Debug("relayed",
		zap.Uint64("msg_id", env.MessageID),
		zap.Uint64("sender", env.SenderID),
		zap.Int("size", len(env.Payload)),
		zap.Int("targets", len(targets)),
		zap.Int("failed", failed))
}

func (n *Node) drop(reason string, src netip.AddrPort, fields ...zap.Field) {
	telemetry.Dropped.WithLabelValues(reason).Inc()
	if ce := n.log.Check(zap.DebugLevel, "dropped"); ce != nil {
		ce.Write(append(fields, zap.String("reason", reason), zap.Stringer("from", src))...)
	}
}

func (n *Node) sweepLoop(ctx context.Context, every time.Duration, cache string, sweep, size func() int) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := sweep()
			left := size()
			telemetry.SweepEvictions.WithLabelValues(cache).Add(float64(removed))
			telemetry.CacheEntries.WithLabelValues(cache).Set(float64(left))
			if removed > 0 {
				n.log.Debug("swept", zap.String("cache", cache), zap.Int("removed", removed), zap.Int("left", left))
			}
		}
	}
}
