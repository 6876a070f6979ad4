package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMergeMCPServer creates an MCP server with the merge engine tools
// registered.
func NewMergeMCPServer(svc *MergeService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "conflux-merge",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "collect_snapshot",
		Description: "Inspect a repository and return the full merge snapshot: branch, status, and a bounded conflict context for every unmerged file.",
	}, svc.CollectSnapshot)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "merge_status",
		Description: "Report the current branch, whether a merge is in progress, and which files are conflicted.",
	}, svc.MergeStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "solve_conflicts",
		Description: "Run the merge solver end to end: snapshot, plan, per-conflict resolution under the approval gate, verification, and finalize or abort.",
	}, svc.SolveConflicts)

	return server
}

// RunMCPServer starts an HTTP server exposing the merge MCP tools.
func RunMCPServer(ctx context.Context, svc *MergeService, addr string) error {
	server := NewMergeMCPServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
