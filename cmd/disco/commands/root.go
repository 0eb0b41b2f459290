package commands

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/TheusHen/disco/disco"
	"github.com/TheusHen/disco/disco/crypto"
	"github.com/TheusHen/disco/disco/identity"
	"github.com/TheusHen/disco/disco/peer"
)

var (
	keyPath   string
	logLevel  string
	logJSON   bool
	transport string
	pattern   string
	pskHex    string
	compress  bool
	peerKey   string
)

func Execute() error {
	root := &cobra.Command{
		Use:           "disco",
		Short:         "Disco handshakes over QUIC or websockets",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(lvl)
			if logJSON {
				logrus.SetFormatter(&logrus.JSONFormatter{})
			}
			disco.SetLogger(logrus.StandardLogger())

			if keyPath == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				keyPath = filepath.Join(dir, ".disco", "static.json")
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&keyPath, "key", "", "static key file (default ~/.disco/static.json)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")
	root.PersistentFlags().StringVar(&transport, "transport", string(peer.TransportQUIC), "transport: quic or ws")
	root.PersistentFlags().StringVar(&pattern, "pattern", "XX", "handshake pattern")
	root.PersistentFlags().StringVar(&pskHex, "psk", "", "pre-shared key in hex, for NNpsk2")
	root.PersistentFlags().BoolVar(&compress, "compress", false, "lz4-compress outgoing messages")
	root.PersistentFlags().StringVar(&peerKey, "peer-key", "", "remote static public key in hex; required where the pattern knows it in advance, pinned otherwise")

	root.AddCommand(keygenCmd(), patternsCmd(), listenCmd(), dialCmd())
	return root.Execute()
}

// peerOptions loads the key file and resolves the shared flags.
func peerOptions() (peer.Options, error) {
	kp, err := identity.Load(keyPath)
	if err != nil {
		return peer.Options{}, fmt.Errorf("load key (run disco keygen first): %w", err)
	}
	opts := peer.Options{
		StaticKeypair: kp,
		Transport:     peer.Transport(transport),
		Compress:      compress,
		Logger:        logrus.StandardLogger(),
	}
	if pattern != "" {
		p, err := disco.PatternByName(pattern)
		if err != nil {
			return peer.Options{}, err
		}
		opts.Pattern = p
	}
	if peerKey != "" {
		k, err := crypto.ParsePublicKeyHex(peerKey)
		if err != nil {
			return peer.Options{}, fmt.Errorf("peer key: %w", err)
		}
		opts.PeerStatic = &k
	}
	if pskHex != "" {
		psk, err := hex.DecodeString(pskHex)
		if err != nil {
			return peer.Options{}, fmt.Errorf("psk: %w", err)
		}
		opts.PresharedKey = psk
	}
	return opts, nil
}
