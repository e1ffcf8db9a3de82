// Package main hosts the weft operator CLI.
//
// The Cobra command tree installs definitions, runs the dispatcher, serves the
// content API, enqueues workflows, and inspects queues and search. Commands
// resolve configuration once through commandContext and reach the content
// service through queueaccess, so the same invocation works against the local
// store or a remote weft server.
package main
