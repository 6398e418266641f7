package protocol

import (
	"bufio"
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(CmdBuild, &BuildRequest{Project: "/src", Platforms: []string{"linux/arm64"}})
	if err != nil {
		t.Fatal(err)
	}

	env, payload, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if env.Command != CmdBuild || env.Version != Version {
		t.Fatalf("envelope = %+v", env)
	}

	req, err := DecodePayload[BuildRequest](payload)
	if err != nil {
		t.Fatal(err)
	}
	if req.Project != "/src" || len(req.Platforms) != 1 || req.Platforms[0] != "linux/arm64" {
		t.Fatalf("request = %+v", req)
	}
}

func TestEncodeNilPayload(t *testing.T) {
	data, err := Encode(CmdStatus, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, payload, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) != 0 {
		t.Fatalf("payload = %s, want empty", payload)
	}

	got, err := DecodePayload[HistoryRequest](payload)
	if err != nil || got.Limit != 0 {
		t.Fatalf("empty payload decoded to %+v, %v", got, err)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := map[string]struct {
		input string
		want  error
	}{
		"not json":        {`{`, ErrMalformed},
		"wrong version":   {`{"version":2,"command":"status"}`, ErrVersion},
		"missing command": {`{"version":1}`, ErrMalformed},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if _, _, err := Decode([]byte(tt.input)); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

// Serves a single exchange on a temporary socket, replying with reply.
func serveOnce(t *testing.T, reply func(*Envelope) ([]byte, error)) string {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "kiln.sock")
	l, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, err := bufio.NewReader(conn).ReadBytes('\n')
		if err != nil {
			return
		}
		env, _, err := Decode(line)
		if err != nil {
			return
		}
		data, err := reply(env)
		if err != nil {
			return
		}
		conn.Write(append(data, '\n'))
	}()

	return socket
}

func TestCallOK(t *testing.T) {
	socket := serveOnce(t, func(env *Envelope) ([]byte, error) {
		return Encode(CmdOK, &StatusResult{Running: true, Version: string(env.Command)})
	})

	var result StatusResult
	if err := Call(context.Background(), socket, CmdStatus, nil, &result); err != nil {
		t.Fatal(err)
	}
	if !result.Running || result.Version != "status" {
		t.Fatalf("result = %+v", result)
	}
}

func TestCallRemoteError(t *testing.T) {
	socket := serveOnce(t, func(*Envelope) ([]byte, error) {
		return Encode(CmdError, &ErrorResult{Message: "no Cargo.toml", Class: "config"})
	})

	err := Call(context.Background(), socket, CmdPlan, &PlanRequest{Project: "/src"}, nil)
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("err = %v, want ErrRemote", err)
	}
	var remote *ErrorResult
	if !errors.As(err, &remote) || remote.Class != "config" {
		t.Fatalf("remote = %+v", remote)
	}
}

func TestCallUnavailable(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "missing.sock")
	err := Call(context.Background(), socket, CmdStatus, nil, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
