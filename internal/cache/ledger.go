package cache

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Unlimited marks a ledger without a capacity bound.
const Unlimited int64 = 0

// Ledger tracks how much of a volume's capacity is in use or claimed by open
// reservations.
type Ledger struct {
	volume   CacheVolume
	capacity int64

	mu       sync.Mutex
	used     int64
	reserved int64
}

// NewLedger binds a ledger to volume. A capacity of Unlimited (or any
// non-positive value) disables the bound.
func NewLedger(volume CacheVolume, capacity int64) *Ledger {
	if capacity < 0 {
		capacity = Unlimited
	}
	return &Ledger{volume: volume, capacity: capacity}
}

// Volume returns the volume the ledger accounts for.
func (l *Ledger) Volume() CacheVolume {
	return l.volume
}

// Capacity returns the configured bound, or Unlimited.
func (l *Ledger) Capacity() int64 {
	return l.capacity
}

// Used returns the bytes committed to the volume.
func (l *Ledger) Used() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used
}

// Free returns the bytes neither used nor reserved. Unlimited ledgers report -1.
func (l *Ledger) Free() int64 {
	if l.capacity == Unlimited {
		return -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity - l.used - l.reserved
}

// Prime seeds the used counter from the volume when it can measure itself.
func (l *Ledger) Prime(ctx context.Context) error {
	reporter, ok := l.volume.(UsageReporter)
	if !ok {
		return nil
	}
	used, err := reporter.UsedBytes(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.used = used
	l.mu.Unlock()
	return nil
}

// Reserve claims size bytes. It fails with ErrInsufficientSpace, wrapped in a
// StorageVolumeError, when the claim does not fit.
func (l *Ledger) Reserve(size int64) (*Reservation, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative reservation size %d", size)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.capacity != Unlimited && l.used+l.reserved+size > l.capacity {
		return nil, &StorageVolumeError{
			Volume: l.volume.Name(),
			Op:     "reserve",
			Err:    fmt.Errorf("%w: need %d bytes, %d free", ErrInsufficientSpace, size, l.capacity-l.used-l.reserved),
		}
	}
	l.reserved += size
	return &Reservation{ledger: l, remaining: size}, nil
}

// Credit returns size bytes to the ledger after an object was removed.
func (l *Ledger) Credit(size int64) {
	if size <= 0 {
		return
	}
	l.mu.Lock()
	l.used -= size
	if l.used < 0 {
		l.used = 0
	}
	l.mu.Unlock()
}

func (l *Ledger) commit(reserved, written int64) {
	l.mu.Lock()
	l.reserved -= reserved
	l.used += written
	l.mu.Unlock()
}

func (l *Ledger) release(size int64) {
	l.mu.Lock()
	l.reserved -= size
	l.mu.Unlock()
}

// Reservation is a claim on part of a volume's capacity. Content committed
// through SaveAs is charged against it; whatever is left is returned to the
// ledger by Release.
type Reservation struct {
	ledger *Ledger

	mu        sync.Mutex
	remaining int64
	released  bool
}

// Volume returns the volume content is committed to.
func (r *Reservation) Volume() CacheVolume {
	return r.ledger.volume
}

// Remaining returns the unclaimed part of the reservation.
func (r *Reservation) Remaining() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining
}

// SaveAs commits the content of src to destName inside the reservation's
// volume. id names the source object for error reporting. On a bounded ledger
// the write fails with ErrInsufficientSpace once it outgrows the reservation;
// the destination is then left untouched.
func (r *Reservation) SaveAs(ctx context.Context, src io.Reader, id, destName string, md Metadata) (*CacheObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil, fmt.Errorf("reservation for %s already released", id)
	}

	volume := r.ledger.volume
	bounded := r.ledger.capacity != Unlimited
	counter := &countingReader{r: src, limit: r.remaining, bounded: bounded}
	if err := volume.SaveAs(ctx, counter, destName, md); err != nil {
		if counter.exceeded {
			return nil, &StorageVolumeError{
				Volume: volume.Name(),
				Op:     "write",
				Name:   destName,
				Err:    fmt.Errorf("%w: %s outgrew its %d byte reservation", ErrInsufficientSpace, id, r.remaining),
			}
		}
		return nil, err
	}

	charged := counter.n
	if charged > r.remaining {
		charged = r.remaining
	}
	r.remaining -= charged
	r.ledger.commit(charged, counter.n)

	obj, err := volume.Get(ctx, destName)
	if err != nil {
		return nil, err
	}
	if obj.Size < 0 {
		obj.Size = counter.n
	}
	if obj.Checksum.IsZero() {
		if sum, ok := md.Checksum(); ok {
			obj.Checksum = sum
		}
	}
	return obj, nil
}

// Release returns the unused part of the claim. It is safe to call more than
// once.
func (r *Reservation) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	r.ledger.release(r.remaining)
	r.remaining = 0
}

type countingReader struct {
	r        io.Reader
	n        int64
	limit    int64
	bounded  bool
	exceeded bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.bounded && c.n > c.limit {
		c.exceeded = true
		return n, ErrInsufficientSpace
	}
	return n, err
}
