// Package protocol defines the messages exchanged with the kiln daemon.
//
// Each connection carries one exchange. The client writes a newline-delimited
// JSON [Envelope] naming a command and carrying its request payload; the
// daemon answers with one envelope whose command is [CmdOK] or [CmdError].
//
//	{"version":1,"command":"build","payload":{"project":"/src/kiln.toml","platforms":["linux/arm64"]}}
//	{"version":1,"command":"ok","payload":{"recipe":"sha256:...","targets":[...]}}
package protocol
