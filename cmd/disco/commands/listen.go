package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"net/http"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/TheusHen/disco/disco"
	"github.com/TheusHen/disco/disco/peer"
	"github.com/TheusHen/disco/disco/session"
)

func listenCmd() *cobra.Command {
	var (
		echo        bool
		accept      []string
		tickets     bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "listen [addr]",
		Short: "Accept sessions and print incoming messages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := "127.0.0.1:4242"
			if len(args) == 1 {
				addr = args[0]
			}
			opts, err := peerOptions()
			if err != nil {
				return err
			}
			for _, name := range accept {
				p, err := disco.PatternByName(name)
				if err != nil {
					return err
				}
				opts.Patterns = append(opts.Patterns, p)
			}
			if tickets {
				if opts.Tickets, err = session.NewTicketStore(); err != nil {
					return err
				}
			}

			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				if opts.Metrics, err = session.NewMetrics(reg); err != nil {
					return err
				}
				go serveMetrics(metricsAddr, reg)
			}

			p := peer.New(opts)
			if err := p.Listen(addr); err != nil {
				return err
			}
			defer p.Close()
			fmt.Printf("Listening on %s\nPublic key: %s\n", p.ListenAddr(), p.PublicKey())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			for {
				c, err := p.Accept(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					logrus.WithError(err).Warn("handshake failed")
					continue
				}
				go serve(c, echo)
			}
		},
	}
	cmd.Flags().BoolVar(&echo, "echo", false, "send every message back")
	cmd.Flags().StringSliceVar(&accept, "accept", nil, "patterns to accept (default all)")
	cmd.Flags().BoolVar(&tickets, "tickets", true, "issue resumption tickets")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func serve(c *session.Conn, echo bool) {
	defer c.Close()
	log := logrus.WithField("pattern", c.Pattern().Name)
	if id, ok := c.RemotePeerID(); ok {
		log = log.WithField("remote", id.Short())
	}
	for {
		msg, err := c.ReadMessage()
		if errors.Is(err, io.EOF) {
			log.Info("session closed")
			return
		}
		if err != nil {
			log.WithError(err).Warn("read failed")
			return
		}
		fmt.Printf("%s\n", msg)
		if echo {
			if err := c.WriteMessage(msg); err != nil {
				log.WithError(err).Warn("echo failed")
				return
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logrus.WithField("addr", addr).Info("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logrus.WithError(err).Error("metrics server stopped")
	}
}
