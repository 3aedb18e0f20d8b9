// Package providers contains built-in provider definitions and the helper that
// turns a Definition into a configured core.Engine.
//
// Each subpackage (cloudservers, glesys, cloudstack) exposes Operations, an
// error message parser and a New constructor.
package providers
