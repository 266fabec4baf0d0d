// Package registry distributes sealpack archives through OCI registries.
//
// An archive is pushed as a single-layer OCI artifact. Pull resolves the
// manifest and opens the archive layer with HTTP range requests, so a
// remote archive can be listed, checked or partially extracted without
// downloading it:
//
//	c := registry.New()
//	m, err := c.Push(ctx, "ghcr.io/acme/assets:v1", r)
//	remote, err := c.Pull(ctx, "ghcr.io/acme/assets:v1")
//	data, err := remote.ReadFile(ctx, "config/app.yaml")
package registry
