/*
Package observability turns bridge lifecycle hooks into Prometheus metrics and
structured log lines.

Hooks built here are plain domain.LifecycleHooks values, so they can be chained
with user-provided hooks and passed to the bridge through its options.
*/
package observability
