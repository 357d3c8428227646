// Package bot composes the client runtime.
//
// # Startup
//
// Run walks these stages and stops at the first failure with a *StageError
// whose Stage.Code is the process exit status:
//
//	-1  configured protocol not in the registry
//	-2  backend provisioning or setup failed
//	-3  adapter setup failed (backends are cleaned up)
//	-4  probe failed (the bot stops itself and shuts down normally)
//
// After setup the backends run in a silent unit named "commu". The bot stops
// when that unit returns, which happens once RequestStop is called or the
// context passed to Run is cancelled.
//
// # Shutdown
//
// The supervisor is drained first: handler units are cancelled and every
// unit is awaited up to runtime.drain_timeout. Then the adapter and the
// backends are cleaned up, in that order.
//
// # Delivery
//
// Adapters call the Deliver* methods from silent units. Messages are matched
// against the directory without forcing enumeration, offered to pending
// WaitMessage callers, then passed to the matching handler in its own
// external unit. Roster events update the directory before OnNotice sees
// them. Anything whose contacts cannot be resolved is logged and dropped.
package bot
