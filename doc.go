// Package dispatch provides the matching and dispatch core for an
// on-demand field-service marketplace. It matches service requests
// ("jobs") to available field workers ("pros"), enforces arrival
// commitments with no-show countdown timers, escalates and reassigns
// when a pro fails to show, and relays live status to connected
// clients over room-based WebSocket broadcast.
//
// Dispatch is designed as a library, not a service. Import it,
// configure a store, and wire the engine into your HTTP surface.
// cmd/dispatchd assembles a ready-to-run server.
//
// # Architecture
//
// Dispatch follows a composable store pattern where each subsystem
// (job, pro, surge) defines its own store interface. A single backend
// implements all of them; Memory and Postgres backends ship in
// store/memory and store/postgres, with a Redis presence overlay in
// store/redis.
//
// The correctness core is the acceptance gateway: concurrent claim
// attempts on the same job are resolved by a single conditional
// update — whichever write matches the still-open status wins, every
// other caller gets ErrJobClaimed.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package dispatch
