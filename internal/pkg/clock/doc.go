// Package clock provides a tiny time abstraction.
//
// Expiry decisions in the code store and timestamps on notification events
// read time through Clocker so tests can pin or advance it deterministically.
package clock
