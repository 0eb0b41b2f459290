package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/TheusHen/disco/disco/peer"
)

func dialCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "dial <addr>",
		Short: "Open a session and send stdin line by line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := peerOptions()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			c, err := peer.New(opts).Dial(ctx, args[0], opts.PeerStatic)
			if err != nil {
				return err
			}
			defer c.Close()
			if k, ok := c.RemoteStatic(); ok {
				logrus.WithField("remote", k.String()).Info("session established")
			}

			go func() {
				for {
					msg, err := c.ReadMessage()
					if err != nil {
						if !errors.Is(err, io.EOF) {
							logrus.WithError(err).Warn("read failed")
						}
						return
					}
					fmt.Printf("< %s\n", msg)
				}
			}()

			sc := bufio.NewScanner(os.Stdin)
			for sc.Scan() {
				if err := c.WriteMessage(sc.Bytes()); err != nil {
					return err
				}
			}
			return sc.Err()
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "handshake timeout")
	return cmd
}
