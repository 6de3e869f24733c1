// Package cache defines the cache volumes that hold copies of objects
// restored from long-term storage. A volume maps object names onto some
// physical medium (a directory tree, Redis, or nothing at all for the null
// volume) and exposes existence checks, streamed reads, atomic writes and
// removal. Writes land through a Reservation taken from the volume's Ledger so
// that restorations never overrun a volume's configured capacity.
package cache
