// Package coordinator implements distributed listener ownership over a
// shared store. Each instance claims channels by atomically inserting
// lease rows keyed by channel id, keeps them alive through a heartbeat
// loop, and takes over channels whose owner's heartbeat has gone stale.
//
// Correctness rests entirely on the store's atomic single-row semantics:
// a unique key makes two simultaneous claims impossible, and takeover is
// one conditional update whose predicate and write execute atomically.
// There is no quorum, no lock manager, and no multi-row transaction.
//
// Failure policy: only Start may return an error (a connectivity probe,
// so a process never registers against an unreachable store). Every
// steady-state operation — acquisition, release, heartbeat, cleanup,
// status — degrades to a logged no-op, because the fleet must keep
// making forward progress through brief store hiccups.
package coordinator
