// Command solidfs mounts a Solid Pod as a POSIX filesystem via FUSE.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/myforest/solidfs/internal/background"
	"github.com/myforest/solidfs/internal/fuseadapter"
	"github.com/myforest/solidfs/internal/solidauth"
	"github.com/myforest/solidfs/internal/solidconfig"
	"github.com/myforest/solidfs/internal/solidfs"
	"github.com/myforest/solidfs/internal/solidhierarchy"
	"github.com/myforest/solidfs/internal/solidhttp"
	"github.com/myforest/solidfs/internal/solidwebsocket"

	"github.com/google/uuid"
)

var (
	mountRoot string
	debug     bool
)

func main() {
	root := &cobra.Command{
		Use:   "solidfs",
		Short: "Mount a Solid Pod as a POSIX filesystem",
		RunE:  run,
	}
	root.Flags().StringVar(&mountRoot, "mountopt-root", "/data/", "mount point; there is no separate --mountopt option")
	root.Flags().BoolVar(&debug, "debug", false, "enable verbose FUSE and HTTP logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := solidconfig.FromEnv()
	if err != nil {
		return err
	}
	if mountRoot != "" {
		cfg.MountRoot = mountRoot
	}

	authenticator, err := solidauth.NewFromEnv()
	if err != nil {
		return err
	}

	sessionID := strings.ReplaceAll(uuid.NewString(), "-", "")
	requestor := solidhttp.NewRequestor(sessionID, authenticator)

	executor := background.New()
	defer executor.Stop()

	var subscriber solidhierarchy.Subscriber
	adapterRef := &adapterHolder{}
	if cfg.EnableWebsocketNotifications {
		subscriber = solidwebsocket.NewClient(http.DefaultClient, executor, adapterRef)
	}

	hierarchy := solidhierarchy.New(cfg.BaseURL, requestor, subscriber)
	adapter := solidfs.New(hierarchy, requestor)
	adapterRef.set(adapter)

	mountOptions := &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName:         "SolidFS",
			Name:           "solidfs",
			Debug:          debug,
			MaxBackground:  64,
			MaxWrite:       131072,
			MaxReadAhead:   131072,
			SingleThreaded: false,
			DisableXAttrs:  false,
			Options:        []string{"sync_read", "no_remote_lock", "big_writes"},
		},
	}

	if err := os.MkdirAll(cfg.MountRoot, 0o755); err != nil {
		return fmt.Errorf("prepare mount point: %w", err)
	}

	server, err := fs.Mount(cfg.MountRoot, fuseadapter.Root(adapter), mountOptions)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	log.WithFields(log.Fields{"mount_root": cfg.MountRoot, "base_url": cfg.BaseURL}).Info("solidfs mounted")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		_ = server.Unmount()
	}()

	server.Wait()
	return nil
}

// adapterHolder breaks the construction cycle between the websocket
// client (which needs an Invalidator) and the adapter (which needs a
// Subscriber to hand the hierarchy): the holder is built first, wired
// into the websocket client, then pointed at the real adapter once it
// exists. Every call through it happens well after set.
type adapterHolder struct {
	adapter *solidfs.Adapter
}

func (h *adapterHolder) set(adapter *solidfs.Adapter) { h.adapter = adapter }

func (h *adapterHolder) InvalidateUpdated(resourceURI string) {
	if h.adapter != nil {
		h.adapter.InvalidateUpdated(resourceURI)
	}
}

func (h *adapterHolder) InvalidateDeleted(resourceURI string) {
	if h.adapter != nil {
		h.adapter.InvalidateDeleted(resourceURI)
	}
}
