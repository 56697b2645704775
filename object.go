package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/graphsync/internal/sync"
)

func newObjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "object <id>",
		Short: "Show one user from a running server's local view",
		Args:  cobra.ExactArgs(1),
		RunE:  runObject,
	}

	addServerFlag(cmd)

	return cmd
}

func runObject(cmd *cobra.Command, args []string) error {
	base := serverBaseURL(resolvedCfg.Server.ListenAddr)

	var obj sync.Object
	if err := fetchJSON(cmd.Context(), newHTTPClient(remoteTimeout), base+"/objects/"+url.PathEscape(args[0]), &obj); err != nil {
		return fmt.Errorf("fetching object %s: %w", args[0], err)
	}

	if flagJSON {
		return printJSON(os.Stdout, obj)
	}

	printObject(os.Stdout, &obj)

	return nil
}

func printObject(w io.Writer, obj *sync.Object) {
	fmt.Fprintf(w, "ID:     %s\n", obj.ID)
	fmt.Fprintf(w, "Synced: %s\n", obj.SyncedAt.Local().Format(time.RFC3339))

	keys := make([]string, 0, len(obj.Attributes))
	for k := range obj.Attributes {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, obj.Attributes[k]})
	}

	if len(rows) > 0 {
		fmt.Fprintln(w)
		printTable(w, []string{"ATTRIBUTE", "VALUE"}, rows)
	}
}
