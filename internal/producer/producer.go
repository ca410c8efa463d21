// Package producer turns an external byte stream into gossip broadcasts.
package producer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"go.uber.org/zap"
)

// Broadcaster is the one operation a producer needs from a node.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload []byte, seq uint64) error
}

type Framing string

const (
	// FramingChunk sends whatever a single read returns as one message.
	FramingChunk Framing = "chunk"
	// FramingLines sends one message per line and skips empty lines.
	FramingLines Framing = "lines"
)

func ParseFraming(s string) (Framing, error) {
	switch f := Framing(s); f {
	case FramingChunk, FramingLines:
		return f, nil
	default:
		return "", fmt.Errorf("unknown framing %q (want %q or %q)", s, FramingChunk, FramingLines)
	}
}

// Producer hands out sequence numbers, starting at 1, shared by every input
// feeding the same node.
type Producer struct {
	node   Broadcaster
	log    *zap.Logger
	seq    atomic.Uint64
	chunk  int
	failed atomic.Uint64
}

func New(node Broadcaster, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{node: node, log: log, chunk: 1024}
}

// Publish broadcasts payload under the next sequence number and returns it.
func (p *Producer) Publish(ctx context.Context, payload []byte) (uint64, error) {
	seq := p.seq.Add(1)
	if err := p.node.Broadcast(ctx, payload, seq); err != nil {
		p.failed.Add(1)
		return seq, err
	}
	return seq, nil
}

// Seq returns the last sequence number handed out.
func (p *Producer) Seq() uint64 { return p.seq.Load() }

// Failed counts Publish calls that returned an error.
func (p *Producer) Failed() uint64 { return p.failed.Load() }

// Run reads r until EOF or ctx is done, publishing one message per frame.
// A failed broadcast is logged and does not stop the stream.
func (p *Producer) Run(ctx context.Context, r io.Reader, framing Framing) error {
	switch framing {
	case FramingLines:
		return p.runLines(ctx, r)
	case FramingChunk, "":
		return p.runChunks(ctx, r)
	default:
		return fmt.Errorf("unknown framing %q", framing)
	}
}

func (p *Producer) runChunks(ctx context.Context, r io.Reader) error {
	buf := make([]byte, p.chunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			p.publish(ctx, bytes.Clone(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (p *Producer) runLines(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimRight(sc.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}
		p.publish(ctx, bytes.Clone(line))
	}
	return sc.Err()
}

func (p *Producer) publish(ctx context.Context, payload []byte) {
	seq, err := p.Publish(ctx, payload)
	if err != nil {
		p.log.Warn("broadcast failed", zap.Uint64("seq", seq), zap.Error(err))
	}
}
