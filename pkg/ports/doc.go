/*
Package ports defines the driven ports (interfaces) for the plotbridge core.

These interfaces decouple the bridge from its collaborators, allowing the same
core to drive websocket or SSE surfaces, to persist annotations in memory, on
disk or in Redis, and to run under an editor host or headless.

# Key Interfaces

  - Surface: a registered sink for broadcast messages.
  - Host: the privileged collaborator that resolves URLs, shows dialogs and opens surfaces.
  - AnnotationStore: persists retained annotations per session key.
  - WorkspaceState: small key/value state that survives host restarts (the session identifier).
  - Dialer / Conn: the message transport used for direct and relayed backend sockets.
  - DistributedLocker: coordinates annotation writes across replicas.
*/
package ports
