// Package redis implements store.Store using Redis. Instances are
// stored as Hashes with an index Set for enumeration. Each lease is a
// string key holding the owner's instance id, claimed with SET NX and
// bounded by a TTL equal to the stale threshold, so Redis itself expires
// abandoned leases and takeover reduces to re-claiming a vanished key.
package redis
