package client

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chanrpc/codec"
	"chanrpc/loadbalance"
	"chanrpc/transport"
)

// DefaultTimeout applies to calls made without WithTimeout.
const DefaultTimeout = 2 * time.Second

type options struct {
	balancer  loadbalance.Balancer
	timeout   time.Duration
	newID     func() string
	logger    zerolog.Logger
	codec     codec.CodecType
	connOpts  []transport.ConnOption
	ownsChans bool
}

func defaultOptions() options {
	return options{
		timeout: DefaultTimeout,
		newID:   uuid.NewString,
		logger:  log.Logger,
	}
}

type Option func(*options)

// WithBalancer selects how calls are spread over the channels. The default
// is round robin starting at the first channel.
func WithBalancer(b loadbalance.Balancer) Option {
	return func(o *options) { o.balancer = b }
}

// WithDefaultTimeout changes the timeout of calls made without WithTimeout.
// Zero disables it.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithIDGenerator replaces the call id generator. Ids must be unique for the
// lifetime of the client.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) { o.newID = gen }
}

// SequentialIDs numbers calls 1, 2, 3, ... instead of using random UUIDs.
func SequentialIDs() Option {
	var n atomic.Uint64
	return WithIDGenerator(func() string {
		return strconv.FormatUint(n.Add(1), 10)
	})
}

// WithCodec selects the frame body codec used by Dial and Discover when the
// server does not announce one.
func WithCodec(ct codec.CodecType) Option {
	return func(o *options) { o.codec = ct }
}

// WithConnOptions passes options to the connections opened by Dial and
// Discover.
func WithConnOptions(opts ...transport.ConnOption) Option {
	return func(o *options) { o.connOpts = append(o.connOpts, opts...) }
}

type callOptions struct {
	timeout  time.Duration
	transfer []any
}

type CallOption func(*callOptions)

// WithTimeout overrides the client default for one call. Zero disables the
// timeout.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// WithTransferables hands the listed values to the server by reference.
func WithTransferables(list ...any) CallOption {
	return func(o *callOptions) { o.transfer = append(o.transfer, list...) }
}
