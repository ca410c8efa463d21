package main

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/ryandielhenn/zephyrgossip/pkg/gossip"
)

type options struct {
	Addr    string `long:"addr" default:"127.0.0.1:9000" description:"gossip node to flood"`
	N       int    `short:"n" default:"5000" description:"messages to send"`
	Conc    int    `short:"c" default:"32" description:"concurrent senders"`
	Senders uint64 `long:"senders" default:"4" description:"distinct sender ids to spread messages over"`
	ValSize int    `long:"val" default:"128" description:"payload size in bytes"`
	Dup     int    `long:"dup" default:"1" description:"times each message is sent"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(2)
	}
	opts.Senders = max(opts.Senders, 1)
	opts.Conc = max(opts.Conc, 1)

	to, err := net.ResolveUDPAddr("udp", opts.Addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var sent, failed atomic.Int64
	wg := sync.WaitGroup{}
	start := time.Now()
	ch := make(chan int, opts.Conc)

	for i := 0; i < opts.N; i++ {
		wg.Add(1)
		ch <- 1
		go func(i int) {
			defer wg.Done()
			defer func() { <-ch }()

			conn, err := net.DialUDP("udp", nil, to)
			if err != nil {
				failed.Add(int64(opts.Dup))
				return
			}
			defer conn.Close()

			sender := uint64(i)%opts.Senders + 1
			payload := bytes.Repeat([]byte{byte(rand.IntN(255))}, opts.ValSize)
			env := gossip.Envelope{
				MessageID: gossip.MessageID(sender, uint64(i+1), payload),
				SenderID:  sender,
				Payload:   payload,
			}
			data, err := env.Encode()
			if err != nil {
				failed.Add(int64(opts.Dup))
				return
			}
			for range opts.Dup {
				if _, err := conn.Write(data); err != nil {
					failed.Add(1)
					continue
				}
				sent.Add(1)
			}
		}(i)
	}
	wg.Wait()
	dur := time.Since(start)
	fmt.Printf("Sent %d datagrams (%d failed) in %s (%.2f msg/s)\n",
		sent.Load(), failed.Load(), dur, float64(sent.Load())/dur.Seconds())
}
