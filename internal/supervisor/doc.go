// Package supervisor runs and tracks the bot's concurrent work units.
//
// # Pools
//
// Every unit belongs to one of two pools:
//
//   - Silent: internal plumbing such as push-frame workers and the backend
//     run loop. Errors are logged and swallowed.
//   - External: user callback work. Cancelled when shutdown begins.
//
// # Lifecycle
//
//	sup := supervisor.New(ctx, logger)
//	h, err := sup.Spawn("push_event_worker", supervisor.Silent, work)
//	...
//	err = sup.Drain(shutdownCtx)
//
// A unit receives its own context and the Spawner it may use to start
// children. A failing or panicking unit never affects its siblings. Drain is
// called once; afterwards Spawn returns ErrDraining.
package supervisor
