package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheusHen/disco/disco"
)

func patternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "List supported handshake patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range disco.Patterns() {
				fmt.Println(p)
				fmt.Println()
			}
			return nil
		},
	}
}
