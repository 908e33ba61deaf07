// Package engine wires all dispatch subsystems together: the matcher,
// the acceptance gateway, the no-show timer registry, the realtime hub,
// and the notification dispatcher. It owns every job lifecycle
// operation exposed over the API.
//
// This package exists to break the import cycle: the root dispatch
// package defines Entity and the sentinel errors (imported by job, pro,
// etc.) and so cannot import those packages back. The engine package
// sits above all subsystem packages and below the application layer.
package engine
