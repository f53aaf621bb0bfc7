package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/meshfabric/fabricd/internal/crdt"
	"github.com/meshfabric/fabricd/internal/memstore"
	"github.com/meshfabric/fabricd/internal/p2pclient"
	"github.com/meshfabric/fabricd/internal/sigpool"
	"github.com/meshfabric/fabricd/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{Use: "fabricd"}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the fabricd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.Version)
		},
	}
}

func serveCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the record fabric node",
		Run: func(cmd *cobra.Command, args []string) {
			runServe(env)
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "config environment suffix, e.g. \"dev\" loads config.dev.yaml")
	return cmd
}

func runServe(env string) {
	cfg, err := config.Load(env)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	log := newLogger(cfg.Logging.Level, cfg.Logging.File)
	log.WithFields(logrus.Fields{
		"node":    cfg.Node.ID,
		"listen":  cfg.Node.ListenAddr,
		"workers": cfg.Sigpool.Workers,
	}).Info("starting fabricd")

	offloader, err := sigpool.New(cfg.Sigpool.Workers)
	if err != nil {
		log.WithError(err).Fatal("start signature offloader")
	}
	defer func() { _ = offloader.Close() }()

	views, err := crdt.NewRegistry(cfg.CRDT.MaxColdKeys)
	if err != nil {
		log.WithError(err).Fatal("start CRDT view registry")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host, ps, err := p2pclient.NewHost(ctx, cfg.Node.ListenAddr, cfg.P2P.BootstrapPeers, log.WithField("component", "libp2p"))
	if err != nil {
		log.WithError(err).Fatal("bootstrap libp2p host")
	}
	defer func() { _ = host.Close() }()

	router := &p2pclient.Router{
		Perms:      p2pclient.NewPermissionStore(localOnlyPermissions),
		LocalPerms: p2pclient.Permissions{AllowUncheckedAccess: true},
		Nodes:      memstore.NewNodes(),
		Blobs:      memstore.NewBlobs(),
		Views:      views,
		Triggers:   p2pclient.NewTriggerBus(ps, log.WithField("component", "triggers")),
		Log:        log.WithField("component", "router"),
	}

	// A transport (internal/p2pclient.WrapConn over an accepted websocket)
	// is wired in per-deployment, since it needs a listener address and a
	// session key established by a handshake that spec §1 leaves out of
	// scope; router is ready to serve the moment one is attached.
	log.WithFields(logrus.Fields{
		"allow_unchecked_access": router.LocalPerms.AllowUncheckedAccess,
		"peer_id":                host.ID().String(),
	}).Info("fabricd is running; send SIGINT/SIGTERM to stop")
	<-ctx.Done()
	log.Info("shutting down")
}

// localOnlyPermissions is the placeholder permission lookup used when no
// external permission source (ledger, config file, control-plane RPC) is
// wired in. Every peer is granted the same baseline permissions; operators
// embedding fabricd as a library are expected to supply their own
// PermissionStore lookup.
func localOnlyPermissions(peerID string) (p2pclient.Permissions, error) {
	return p2pclient.Permissions{
		AllowUncheckedAccess: false,
		Store:                p2pclient.StorePermissions{AllowStore: true, AllowWriteBlob: true},
		Fetch: p2pclient.FetchPermissions{
			AllowAlgos:    []string{string(crdt.NameSorted), string(crdt.NameRefID), string(crdt.NameSortedRefID)},
			AllowReadBlob: true,
			AllowTrigger:  true,
		},
	}, nil
}

func newLogger(level, file string) *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			log.SetOutput(f)
		} else {
			log.WithError(err).Warn("falling back to stderr for logging")
		}
	}
	return log
}
