// Package integration runs the whole server in-process and drives it through
// HTTP and real socket clients.
package integration
