package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/kbchat/internal/domain/knowledge"
	"github.com/kailas-cloud/kbchat/internal/usecase/ingest"
)

// operations is what the CLI needs from the assembled services.
type operations interface {
	Ingest(ctx context.Context, req ingest.Request) (ingest.Result, error)
	Clear(ctx context.Context, namespace string) error
	List() ([]knowledge.Entry, error)
}

// opener builds the services for one command run; release frees them.
type opener func(ctx context.Context) (ops operations, release func(), err error)

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "kbchatctl",
		Short:         "Manage kbchat knowledge bases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newIngestCmd(open), newClearCmd(open), newListCmd(open))
	return root
}

func newIngestCmd(open opener) *cobra.Command {
	var req ingest.Request
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load, split and embed a file or directory into a namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ops, release, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			res, err := ops.Ingest(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("%s: %w", res.Message, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks in %q\n", res.Message, res.Chunks, req.Namespace)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&req.Path, "path", "p", "", "file or directory to ingest")
	f.StringVarP(&req.Namespace, "namespace", "n", "", "target namespace")
	f.StringVarP(&req.Type, "type", "t", "", `source type ("directory" walks a folder)`)
	f.StringVar(&req.Extension, "ext", "", "override the loader extension")
	f.IntVar(&req.ChunkSize, "chunk-size", 0, "chunk size (0 uses the configured default)")
	f.IntVar(&req.ChunkOverlap, "chunk-overlap", 0, "chunk overlap")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("namespace")
	return cmd
}

func newClearCmd(open opener) *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every vector stored under a namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ops, release, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			if err := ops.Clear(cmd.Context(), namespace); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared namespace %q\n", namespace)
			return nil
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "namespace to clear")
	_ = cmd.MarkFlagRequired("namespace")
	return cmd
}

func newListCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered knowledge bases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ops, release, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			entries, err := ops.List()
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), entries)
		},
	}
}

func printEntries(out io.Writer, entries []knowledge.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No knowledge bases registered.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAMESPACE\tNAME\tCHUNK SIZE\tOVERLAP\tFILE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", e.Namespace, e.KnowledgeName, e.ChunkSize, e.ChunkSizeOverlap, e.File.URL)
	}
	return tw.Flush()
}
