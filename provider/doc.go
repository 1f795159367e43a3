// Package provider is a small generic framework for named, swappable
// backends: a Provider contract, a Factory, and a Registry that builds and
// caches instances by name. The transcription engines are registered
// through it.
package provider
