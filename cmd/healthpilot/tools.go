package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ent0n29/healthpilot/internal/toolcall"
)

func newToolsCmd() *cobra.Command {
	var withInstruction bool
	var language string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool declarations offered to the live model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := map[string]any{"tools": toolcall.Declarations()}
			if withInstruction {
				out["instruction"] = toolcall.DefaultInstruction(language)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&withInstruction, "instruction", false, "include the session persona instruction")
	cmd.Flags().StringVar(&language, "language", "English", "language named in the instruction")
	return cmd
}
