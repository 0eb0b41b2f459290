// Package commands defines the disco CLI.
//
// Commands
//
//   - keygen     Create a static X25519 key file
//   - patterns   List the supported handshake patterns
//   - listen     Accept sessions and print (or echo) their messages
//   - dial       Open a session and send stdin line by line
//
// # Implementation
//
// The root command configures logrus and resolves the shared flags into
// peer.Options before any subcommand runs.
package commands
