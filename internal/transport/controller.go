package transport

import (
	"context"
	"sync/atomic"
)

// Mailbox is the device side a link talks to. *mailbox.Mailbox implements it.
type Mailbox interface {
	Subscribe()
	Unsubscribe() error
	Deposit(cmd []byte)
	WaitData(ctx context.Context, after uint64) ([]byte, uint64, error)
}

// LinkStats counts the records a link has moved.
type LinkStats struct {
	Commands uint64 `json:"commands"`
	Dropped  uint64 `json:"dropped"`
	Records  uint64 `json:"records"`
}

type linkCounters struct {
	commands atomic.Uint64
	dropped  atomic.Uint64
	records  atomic.Uint64
}

func (c *linkCounters) snapshot() LinkStats {
	return LinkStats{
		Commands: c.commands.Load(),
		Dropped:  c.dropped.Load(),
		Records:  c.records.Load(),
	}
}

// forwardData waits for each new data record and hands it to send until ctx
// is done or send fails.
func forwardData(ctx context.Context, box Mailbox, send func([]byte) error) error {
	var seq uint64
	for {
		data, next, err := box.WaitData(ctx, seq)
		if err != nil {
			return nil
		}
		seq = next
		if err := send(data); err != nil {
			return err
		}
	}
}
