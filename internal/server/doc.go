// Package server implements the kiln daemon.
//
// The daemon listens on a Unix domain socket for JSON-encoded commands
// from the kiln CLI. Each connection carries a single request-response
// exchange: the client sends a newline-delimited JSON envelope, the
// server dispatches the command, and writes the result back before
// closing the connection. Closing the connection early cancels the
// command, and so does stopping the server.
//
// Plan commands compute a project's dependency recipe. Build and release
// commands are delegated to the build package, which runs stage containers
// against containerd and records every target in the build ledger.
//
// Example usage:
//
//	srv, err := server.New(server.Config{
//	    ContainerdAddress: "/run/containerd/containerd.sock",
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	<-srv.Done()
package server
