// Package transport owns the byte streams flx talks over: the stdio pipes of a
// spawned flutter tool process, or a socket to a running app's VM service.
//
// Every transport is line oriented. ReadLine returns one message without its
// trailing newline and WriteLine writes exactly one, serializing concurrent
// writers so lines never interleave. Neither side knows anything about JSON;
// framing and correlation live in package mux.
//
// Closing a transport releases everything it owns. For a Process that means
// closing stdin, then escalating SIGINT and SIGKILL to the process group until
// the tool exits, so callers never have to remember a separate kill step.
package transport
