package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dusk-indust/conflux/internal/gitx"
	"github.com/dusk-indust/conflux/internal/logx"
)

// printStatus prints the merge state of the working directory.
func printStatus(ctx context.Context, workdir string, log *logx.Logger) error {
	in := gitx.NewInspector(workdir, log.With("inspector"))

	paths, err := in.UnmergedPaths(ctx)
	if err != nil {
		return err
	}

	if in.MergeInProgress(ctx) {
		fmt.Println("merge in progress")
	} else {
		fmt.Println("no merge in progress")
	}
	if len(paths) == 0 {
		fmt.Println("no conflicts")
		return nil
	}
	fmt.Printf("%d conflicted file(s):\n  %s\n", len(paths), strings.Join(paths, "\n  "))
	return nil
}
