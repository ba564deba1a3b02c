/*
Package domain contains the core models shared by every plotbridge component.

It defines the plot artifacts pushed by the backend, the client-owned annotations
that must survive list refreshes, the connection state owned by the Connection
Manager, and the JSON messages exchanged with the backend and with presentation
surfaces. This package is kept free of I/O, following the same hexagonal split
as the rest of the module.

# Key Entities

  - Plot: an artifact with a backend-owned identity/payload and client-owned note/favorite.
  - RetainedAnnotations: per-identifier notes and favorites carried across snapshots.
  - ConnectionState: Disconnected, Connecting or Connected over a Direct or Relay transport.
  - Outbound / Inbound: backend wire frames.
  - SurfaceMessage / Action: broadcast messages to surfaces and requests coming back.
*/
package domain
