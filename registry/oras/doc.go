// Package oras is the OCI registry transport used by package registry.
//
// Client wraps oras-go with a shared auth client and token cache, and
// exposes the handful of blob and manifest operations that archive
// distribution needs.
package oras
