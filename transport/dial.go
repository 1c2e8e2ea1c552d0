package transport

import (
	"context"
	"net"

	"golang.org/x/sync/errgroup"

	"chanrpc/codec"
)

// DialPool opens n connections to addr concurrently. Either all of them
// succeed or every connection already opened is closed again.
func DialPool(ctx context.Context, network, addr string, n int, codecType codec.CodecType, opts ...ConnOption) ([]*Conn, error) {
	conns := make([]*Conn, n)
	g, ctx := errgroup.WithContext(ctx)
	var dialer net.Dialer
	for i := 0; i < n; i++ {
		g.Go(func() error {
			nc, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return err
			}
			conns[i] = NewConn(nc, codecType, opts...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, c := range conns {
			if c != nil {
				c.Close()
			}
		}
		return nil, err
	}
	return conns, nil
}
