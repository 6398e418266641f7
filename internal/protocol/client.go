package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
)

// Sends one command to the daemon at socketPath and decodes the reply into
// result, which may be nil when no payload is expected.
//
// A [CmdError] reply is returned as an error wrapping [ErrRemote] and the
// daemon's [ErrorResult]. Cancelling ctx closes the connection, which the
// daemon observes as a disconnect and uses to abandon the command.
func Call(ctx context.Context, socketPath string, cmd Command, req, result any) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	data, err := Encode(cmd, req)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	env, payload, err := Decode(line)
	if err != nil {
		return err
	}

	switch env.Command {
	case CmdOK:
		if result == nil || len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, result); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return nil
	case CmdError:
		remote, err := DecodePayload[ErrorResult](payload)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %w", ErrRemote, remote)
	default:
		return fmt.Errorf("%w: unexpected reply %q", ErrMalformed, env.Command)
	}
}
