package timesync

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"
)

// NTPSource queries NTP servers directly and confirms the clock once a
// valid response shows the local clock within MaxOffset.
type NTPSource struct {
	servers   []string
	maxOffset time.Duration
	timeout   time.Duration
	query     func(host string, opts ntp.QueryOptions) (*ntp.Response, error)
	next      atomic.Uint64
}

// NewNTPSource returns a source for the given servers.
func NewNTPSource(servers []string, maxOffset time.Duration) (*NTPSource, error) {
	if len(servers) == 0 {
		return nil, ErrNoServers
	}
	if maxOffset <= 0 {
		maxOffset = time.Second
	}
	return &NTPSource{
		servers:   servers,
		maxOffset: maxOffset,
		timeout:   5 * time.Second,
		query:     ntp.QueryWithOptions,
	}, nil
}

// Name implements Source.
func (*NTPSource) Name() string { return "ntp" }

// Start implements Source.
func (*NTPSource) Start(context.Context) error { return nil }

// Status queries one server per poll, rotating through the list.
func (n *NTPSource) Status(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return StatusPending, err
	}

	host := n.servers[(n.next.Add(1)-1)%uint64(len(n.servers))]

	resp, err := n.query(host, ntp.QueryOptions{Timeout: n.timeout})
	if err != nil {
		return StatusPending, fmt.Errorf("querying %s: %w", host, err)
	}
	if err := resp.Validate(); err != nil {
		return StatusPending, fmt.Errorf("validating %s: %w", host, err)
	}

	offset := resp.ClockOffset
	if offset < 0 {
		offset = -offset
	}
	if offset > n.maxOffset {
		return StatusPending, nil
	}
	return StatusConfirmed, nil
}
