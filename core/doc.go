// Package core binds declarative operations into HTTP requests, keeps the
// provider session fresh and classifies failures for the retry loop.
// Transports, credential strategies and persistence live in sibling packages;
// core must not depend on them.
package core
