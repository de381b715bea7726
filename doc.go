// Package twitchmon is the coordination core of the Twitch monitoring
// dashboard. A horizontally scaled fleet of stateless listener processes
// shares one relational (or Redis) store and uses it to divide ownership
// of the monitored Twitch channels: each channel is listened to by exactly
// one live instance, ownership moves within a bounded delay when an
// instance crashes, and no instance accepts more channels than its
// configured capacity.
//
// There is no consensus protocol and no external lock service. Every
// mutation the coordinator performs is a single atomic statement scoped by
// a unique key (insert-fails-on-duplicate, UPDATE ... WHERE, DELETE ...
// WHERE), so the store's row-level atomicity is the only synchronization
// primitive.
//
// # Quick start
//
//	st, err := postgres.New(ctx, dsn)
//	c := coordinator.New(st,
//	    coordinator.WithLogger(logger),
//	)
//	if err := c.Start(ctx); err != nil { ... }
//	if c.TryAcquire(ctx, "some_channel") {
//	    // open the chat connection for some_channel
//	}
//
// # Architecture
//
// The instance and lease packages each define a narrow store interface;
// the composite store.Store embeds both. A single backend (postgres, bun,
// sqlite, redis, memory) implements everything. The coordinator package
// holds the only business logic; hook and observability provide lifecycle
// events and metrics on top of it.
//
// Instance identity uses TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers generated once per process lifetime.
package twitchmon
