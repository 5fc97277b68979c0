package transport

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/google/shlex"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/pool"
)

// StdioDialer dials outbound servers spawned as child processes,
// handing each stderr line to OnStderr as it arrives.
type StdioDialer struct {
	// OnStderr, if set, receives each stderr line from a spawned server.
	OnStderr func(srv model.InstalledServer, line string)
}

type stdioConn struct {
	cmd     *exec.Cmd
	client  *mcp.Client
	session *mcp.ClientSession
}

func (c *stdioConn) Close() error {
	err := c.session.Close()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	return err
}

func (c *stdioConn) Session() *mcp.ClientSession { return c.session }

func (d *StdioDialer) Dial(ctx context.Context, srv model.InstalledServer) (pool.Conn, error) {
	if srv.Command == nil || *srv.Command == "" {
		return nil, fmt.Errorf("transport: server %s has no command configured", srv.ID)
	}
	argv, err := shlex.Split(*srv.Command)
	if err != nil || len(argv) == 0 {
		return nil, fmt.Errorf("transport: parsing command for %s: %w", srv.ID, err)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = mergedShellEnv()
	setProcessGroup(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stderr pipe for %s: %w", srv.ID, err)
	}

	mcpTransport := &mcp.CommandTransport{Command: cmd}
	client := mcp.NewClient(&mcp.Implementation{Name: "mcpmux-gateway", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, mcpTransport, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: spawn %s: %w", srv.ID, err)
	}

	if d.OnStderr != nil {
		go streamStderr(stderr, srv, d.OnStderr)
	}

	return &stdioConn{cmd: cmd, client: client, session: session}, nil
}

func streamStderr(r interface{ Read([]byte) (int, error) }, srv model.InstalledServer, onLine func(model.InstalledServer, string)) {
	buf := make([]byte, 4096)
	var partial []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			partial = append(partial, buf[:n]...)
			for {
				idx := -1
				for i, b := range partial {
					if b == '\n' {
						idx = i
						break
					}
				}
				if idx < 0 {
					break
				}
				onLine(srv, string(partial[:idx]))
				partial = partial[idx+1:]
			}
		}
		if err != nil {
			if len(partial) > 0 {
				onLine(srv, string(partial))
			}
			return
		}
	}
}

// mergedShellEnv merges the process environment with a shell-resolved
// PATH. GUI-launched processes often inherit a minimal PATH that lacks
// the user's shell customizations, which breaks stdio servers that
// expect node/python/etc to be reachable unqualified.
func mergedShellEnv() []string {
	env := os.Environ()
	if path, ok := shellResolvedPath(); ok {
		env = append(env, "PATH="+path)
	}
	return env
}
