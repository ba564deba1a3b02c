/*
Package plotbridge keeps presentation surfaces in sync with a plot-producing
backend process.

A backend announces its port by writing a small session descriptor. The Bridge
discovers the port, connects to the backend directly or through a relay when
the direct socket is unreachable, merges the plot lists the backend pushes with
the notes and favorites set by the user, and fans the merged view out to every
registered surface. Actions coming back from surfaces are routed to the
backend or to the host collaborator for dialogs and file I/O.

# Usage

	paths, _ := descriptor.OpenSession(state, descriptor.Layout{WorkspaceDir: dir})
	b := plotbridge.New(
		plotbridge.WithDescriptor(descriptor.NewResolver(paths)),
		plotbridge.WithHost(host.NewHeadless()),
		plotbridge.WithLogger(logger),
	)

	surface := broadcast.NewChannelSurface("panel", broadcast.DefaultBuffer)
	handle := b.Register(surface, true)
	defer handle.Dispose()

	go b.Run(ctx)

	_ = b.HandleAction(ctx, domain.Action{Command: domain.ActToggleFavorite, PlotID: "1"})

# Components

  - descriptor: session identifier and port discovery.
  - connection: the single logical backend connection and its relay fallback.
  - plots: reconciliation of backend snapshots with retained annotations.
  - broadcast: the surface registry.
  - session: persistence of annotations across restarts.
*/
package plotbridge
