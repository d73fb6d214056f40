package cmd

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/mergepipe/internal/config"
)

var operationsCmd = &cobra.Command{
	Use:   "operations",
	Short: "List the available merge operations",
	Args:  cobra.NoArgs,
	RunE:  runOperations,
}

func init() {
	rootCmd.AddCommand(operationsCmd)
}

func runOperations(cmd *cobra.Command, args []string) error {
	settings, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(settings)
	if err != nil {
		return err
	}
	defer logger.Close()

	registry, err := newRegistry(settings, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	st := newStyles(out)

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	for _, name := range registry.Names() {
		op, _ := registry.Get(name)
		fmt.Fprintf(w, "%s\t%s\n", name, op.Description())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	// Columns are laid out before styling so escape codes do not skew them.
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		name, rest, _ := strings.Cut(line, " ")
		fmt.Fprintln(out, st.fit(st.name.Render(name)+" "+rest))
	}
	return nil
}
