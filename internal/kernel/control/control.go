// Package control exposes a running kernel's process table and console
// history over a Unix-domain socket, the read-only diagnostic surface
// the `pios ps` subcommand queries, using net plus encoding/json
// directly rather than a general-purpose RPC layer built for a much
// larger surface (checkpoint/restore, exec, port-forwarding) this core
// has no concept of; see DESIGN.md.
package control

import (
	"encoding/json"
	"net"
	"os"

	"github.com/northlake-os/pios/internal/kernel/console"
	"github.com/northlake-os/pios/internal/kernel/proc"
)

// ProcSnapshot is one process table row as reported to a `pios ps` client.
type ProcSnapshot struct {
	Index     int    `json:"index"`
	State     string `json:"state"`
	ParentOf  int    `json:"parent_of,omitempty"`
	HasParent bool   `json:"has_parent"`
	EIP       uint32 `json:"eip"`
	Name      string `json:"name,omitempty"`
}

// Snapshot is the full response to a control query.
type Snapshot struct {
	Procs   []ProcSnapshot `json:"procs"`
	Console []console.Line `json:"console"`
}

// Server serves Snapshot queries over a Unix-domain socket.
type Server struct {
	ln      net.Listener
	table   *proc.Table
	con     *console.Console
	maxProc int
}

// Listen creates (removing any stale socket file first) and binds a
// Unix-domain socket at path, ready to Serve.
func Listen(path string, table *proc.Table, con *console.Console, maxProc int) (*Server, error) {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &Server{ln: ln, table: table, con: con, maxProc: maxProc}, nil
}

// Addr returns the socket path the server is listening on.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve accepts connections until Close is called, writing one JSON
// Snapshot per connection and closing it. It always returns a non-nil
// error (net.ErrClosed after Close).
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	snap := s.snapshot()
	_ = json.NewEncoder(conn).Encode(snap)
}

func (s *Server) snapshot() Snapshot {
	var procs []ProcSnapshot
	for i := 0; i < s.maxProc; i++ {
		p := s.table.Get(i)
		if p == nil {
			continue
		}
		row := ProcSnapshot{
			Index: p.Index(),
			State: p.State().String(),
			EIP:   p.TrapFrame().EIP,
			Name:  p.Name(),
		}
		if parent := p.Parent(); parent != nil {
			row.HasParent = true
			row.ParentOf = parent.Index()
		}
		procs = append(procs, row)
	}
	return Snapshot{Procs: procs, Console: s.con.History()}
}

// Close stops accepting new connections.
func (s *Server) Close() error { return s.ln.Close() }

// Client queries a Server.
type Client struct {
	path string
}

// Dial returns a Client that will connect to the Unix-domain socket at
// path on each Snapshot call.
func Dial(path string) *Client { return &Client{path: path} }

// Snapshot connects, reads one JSON Snapshot, and closes the connection.
func (c *Client) Snapshot() (Snapshot, error) {
	conn, err := net.Dial("unix", c.path)
	if err != nil {
		return Snapshot{}, err
	}
	defer conn.Close()

	var snap Snapshot
	if err := json.NewDecoder(conn).Decode(&snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
