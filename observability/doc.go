// Package observability provides a Prometheus metrics extension for the
// dispatch core. The MetricsExtension implements lifecycle hooks to
// record system-wide counters for job creation, acceptance, claim
// conflicts, check-ins, no-show warnings and escalations, emergency
// dispatches, and disaster-mode toggles.
package observability
