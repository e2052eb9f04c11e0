// Package registry defines the remote directive store consumed by the
// engine and ships both ends of its HTTP API: a Client that implements
// Store and Publisher against a registry URL, and a Server that exposes any
// Store over chi with Prometheus metrics.
package registry
