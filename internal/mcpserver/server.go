package mcpserver

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"dwcavalidate/internal/validate"
)

// RunFunc performs one full validation pass against a freshly-built
// accumulator and returns it once the run is complete. The server never
// builds evaluators or reads an archive itself; that stays with whatever
// cmd entrypoint owns the archive path and evaluator wiring.
type RunFunc func(ctx context.Context) (*validate.MemoryAccumulator, error)

// Server exposes a validation run over the Model Context Protocol so an
// agent can trigger a pass and read back its findings, optionally
// filtered by kind, without shelling out to a CLI.
type Server struct {
	mcp *server.MCPServer
	run RunFunc

	mu   sync.Mutex
	last *validate.MemoryAccumulator
}

// New creates a configured Server. run is invoked once per validate_archive
// call.
func New(run RunFunc) *Server {
	s := &Server{run: run}

	s.mcp = server.NewMCPServer(
		"dwcavalidate-mcp",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.registerTools()
	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[mcpserver] starting stdio server")
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("validate_archive",
		mcp.WithDescription("Run one full validation pass over the configured archive and report a findings summary."),
	), s.handleValidateArchive)

	s.mcp.AddTool(mcp.NewTool("list_findings",
		mcp.WithDescription("List findings from the most recent validate_archive run, optionally filtered by kind."),
		mcp.WithString("kind", mcp.Description("Restrict results to this finding kind (e.g. FIELD_UNIQUENESS)")),
	), s.handleListFindings)
}

func (s *Server) handleValidateArchive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	acc, err := s.run(ctx)
	if err != nil {
		return nil, fmt.Errorf("validation run: %w", err)
	}

	s.mu.Lock()
	s.last = acc
	s.mu.Unlock()

	counts := map[validate.Kind]int{}
	for _, f := range acc.Findings {
		counts[f.Kind]++
	}
	return jsonResult(map[string]any{
		"totalFindings": len(acc.Findings),
		"byKind":        counts,
	})
}

func (s *Server) handleListFindings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	acc := s.last
	s.mu.Unlock()

	if acc == nil {
		return nil, fmt.Errorf("no validation run has completed yet — call validate_archive first")
	}

	kindFilter := req.GetString("kind", "")
	findings := acc.Findings
	if kindFilter != "" {
		filtered := make([]validate.Finding, 0, len(findings))
		for _, f := range findings {
			if string(f.Kind) == kindFilter {
				filtered = append(filtered, f)
			}
		}
		findings = filtered
	}
	return jsonResult(findings)
}
