// Package mcpadapter exposes case operations as MCP tools over stdio.
package mcpadapter

import (
	"context"
	"errors"
	"io"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/dossier-summarizer/internal/core/ports"
)

const Version = "0.1.0"

var ErrMissingLedger = errors.New("mcp: case ledger is required")

// Ports are the use cases the tools call. Runner and Reports are optional;
// their tools are not registered when nil.
type Ports struct {
	Ledger  ports.CaseLedger
	Runner  ports.CaseRunner
	Reports ports.ReportBuilder
}

type Server struct {
	ports  Ports
	server *server.MCPServer
}

func NewServer(p Ports) (*Server, error) {
	if p.Ledger == nil {
		return nil, ErrMissingLedger
	}
	s := &Server{
		ports:  p,
		server: server.NewMCPServer("dossier-summarizer", Version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s, nil
}

// Run serves JSON-RPC on stdin/stdout until ctx is canceled or stdin closes.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	return server.NewStdioServer(s.server).Listen(ctx, stdin, stdout)
}
