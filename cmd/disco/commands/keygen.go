package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheusHen/disco/disco/identity"
)

func keygenCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a static key and store it in the key file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(keyPath); err == nil && !force {
				return fmt.Errorf("%s exists (use --force to replace it)", keyPath)
			}
			kp, err := identity.Generate()
			if err != nil {
				return err
			}
			if err := identity.Save(keyPath, kp); err != nil {
				return err
			}
			fmt.Printf("Key written to %s\nPublic key: %s\nPeer ID:    %s\n",
				keyPath, kp.Public, identity.PeerIDFromPublicKey(kp.Public))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	return cmd
}
