// File: cmd/sequence.go
package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hexhaunt/promptq-cli/internal/observability"
	"github.com/hexhaunt/promptq-cli/internal/sequence"
)

func newSequenceCmd() *cobra.Command {
	seqCmd := &cobra.Command{
		Use:   "sequence",
		Short: "Manage stored prompt sequences",
		Long: `Sequences are named, ordered prompt lists kept in the configured store.
A stored sequence can be replayed with "promptq run --sequence ID" or through
the control server.`,
	}
	seqCmd.AddCommand(newSequenceListCmd())
	seqCmd.AddCommand(newSequenceShowCmd())
	seqCmd.AddCommand(newSequenceSaveCmd())
	seqCmd.AddCommand(newSequenceDeleteCmd())
	return seqCmd
}

func newSequenceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sequences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			store, cleanup, err := openSequenceStore(ctx, cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer cleanup()

			seqs, err := store.List(ctx)
			if err != nil {
				return err
			}
			if len(seqs) == 0 {
				cmd.Println("No sequences stored.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPROMPTS\tUPDATED")
			for _, s := range seqs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					s.ID, s.Name, len(s.Prompts), s.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newSequenceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one sequence with its prompts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			store, cleanup, err := openSequenceStore(ctx, cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer cleanup()

			seq, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}

			cmd.Printf("ID:          %s\n", seq.ID)
			cmd.Printf("Name:        %s\n", seq.Name)
			if seq.Description != "" {
				cmd.Printf("Description: %s\n", seq.Description)
			}
			cmd.Printf("Created:     %s\n", seq.CreatedAt.Format(time.RFC3339))
			cmd.Printf("Updated:     %s\n", seq.UpdatedAt.Format(time.RFC3339))
			cmd.Println("Prompts:")
			for i, p := range seq.Prompts {
				cmd.Printf("  %2d. %s\n", i+1, p)
			}
			return nil
		},
	}
}

func newSequenceSaveCmd() *cobra.Command {
	var (
		id          string
		name        string
		description string
		fromFile    string
	)

	saveCmd := &cobra.Command{
		Use:   "save [prompts...]",
		Short: "Create or update a sequence",
		Long: `Save stores a named sequence. Prompts come from positional arguments or
--file. Passing --id updates an existing sequence; fields left unset keep
their stored values.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			var prompts []string
			switch {
			case fromFile != "" && len(args) > 0:
				return fmt.Errorf("choose one prompt source: positional arguments or --file")
			case fromFile != "":
				prompts, err = readPromptFile(fromFile)
				if err != nil {
					return err
				}
			default:
				prompts = args
			}

			store, cleanup, err := openSequenceStore(ctx, cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer cleanup()

			seq := sequence.Sequence{ID: id, Name: name, Description: description, Prompts: prompts}
			if id != "" {
				existing, err := store.Get(ctx, id)
				if err != nil {
					return err
				}
				seq.CreatedAt = existing.CreatedAt
				if name == "" {
					seq.Name = existing.Name
				}
				if description == "" {
					seq.Description = existing.Description
				}
				if len(prompts) == 0 {
					seq.Prompts = existing.Prompts
				}
			}
			if err := seq.Validate(); err != nil {
				return err
			}

			saved, err := store.Save(ctx, seq)
			if err != nil {
				return err
			}
			cmd.Printf("Saved sequence %s (%d prompts).\n", saved.ID, len(saved.Prompts))
			return nil
		},
	}

	saveCmd.Flags().StringVar(&id, "id", "", "update an existing sequence")
	saveCmd.Flags().StringVarP(&name, "name", "n", "", "sequence name (required for new sequences)")
	saveCmd.Flags().StringVarP(&description, "description", "d", "", "sequence description")
	saveCmd.Flags().StringVarP(&fromFile, "file", "f", "", "read prompts from a file, one per line (- for stdin)")
	return saveCmd
}

func newSequenceDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			store, cleanup, err := openSequenceStore(ctx, cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := store.Delete(ctx, args[0]); err != nil {
				return err
			}
			cmd.Printf("Deleted sequence %s.\n", args[0])
			return nil
		},
	}
}
