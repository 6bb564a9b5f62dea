package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-molecule/pkg/simplemolecule"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewInspectCommand creates the inspect command
func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file>...",
		Short: "Show format and statistics of molecular files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := NewServiceClientFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			results := make([]*InspectResult, 0, len(args))
			for _, path := range args {
				result, err := client.Inspect(path)
				if err != nil {
					return fmt.Errorf("inspect %s: %w", path, err)
				}
				results = append(results, result)
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
	return cmd
}

// NewResolveCommand creates the resolve command
func NewResolveCommand() *cobra.Command {
	var identifier string
	var skipFallback bool
	var contentOnly bool
	var preload []string

	cmd := &cobra.Command{
		Use:   "resolve <filename-or-content>",
		Short: "Resolve a filename through the cache and fallback tiers",
		Long: `Resolve a filename or literal molecular text the way a workflow node would.
The result metadata names the tier that answered and every tier attempted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := NewServiceClientFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			res, err := client.Resolve(cmd.Context(), args[0], identifier, skipFallback, preload)
			if err != nil {
				return err
			}
			if contentOnly {
				if !res.Metadata.Success {
					return fmt.Errorf("%s: %s", args[0], res.Metadata.Error)
				}
				_, err := io.WriteString(cmd.OutOrStdout(), res.Content)
				return err
			}
			return printJSON(cmd.OutOrStdout(), res.Metadata)
		},
	}

	cmd.Flags().StringVar(&identifier, "identifier", "", "requesting identifier, e.g. workflow_node_3")
	cmd.Flags().BoolVar(&skipFallback, "skip-fallback", false, "do not read the fallback source")
	cmd.Flags().BoolVar(&contentOnly, "content", false, "print the resolved content instead of metadata")
	cmd.Flags().StringSliceVar(&preload, "preload", nil, "files to store in the cache before resolving")

	return cmd
}

// NewEditCommand creates the edit command
func NewEditCommand() *cobra.Command {
	var editType string
	var outputPath string

	cmd := &cobra.Command{
		Use:   "edit <file>",
		Short: "Apply an edit to a molecular file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := NewServiceClientFromFlags(cmd)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			result, err := client.Edit(cmd.Context(), args[0], simplemolecule.EditType(editType))
			if err != nil {
				return fmt.Errorf("edit failed: %w", err)
			}

			if outputPath == "" {
				_, err := io.WriteString(cmd.OutOrStdout(), result.Content)
				return err
			}
			if err := os.WriteFile(outputPath, []byte(result.Content), 0644); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s (atoms %d -> %d)\n",
				outputPath, result.Description, result.Before.Atoms, result.After.Atoms)
			return nil
		},
	}

	cmd.Flags().StringVar(&editType, "type", string(simplemolecule.EditRemoveLastAtom), "edit type")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default stdout)")

	return cmd
}
