// Command p2p-peer starts one peer of the file-sharing swarm,
// matching the positional CLI contract of spec §6:
// "<program> <peer_id> <file_name_1> [<file_name_2> …]". Grounded on
// the teacher's cmd/p2p-transfer root/peer command pair, collapsed
// into a single rootCmd since this system has no subcommands of its
// own, and on original_source/main.cpp for the argument-count and
// lookup-failure exit codes.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/p2p-swarm/p2p-transfer/internal/config"
	"github.com/p2p-swarm/p2p-transfer/internal/discovery"
	"github.com/p2p-swarm/p2p-transfer/internal/logger"
	"github.com/p2p-swarm/p2p-transfer/internal/monitor"
	"github.com/p2p-swarm/p2p-transfer/internal/orchestrator"
	"github.com/p2p-swarm/p2p-transfer/internal/peerutil"
	"github.com/p2p-swarm/p2p-transfer/internal/registry"
	"github.com/p2p-swarm/p2p-transfer/internal/store"
	"github.com/p2p-swarm/p2p-transfer/internal/transfer"
)

// StartupSettleDelay mirrors the original's
// Constants::SERVER_STARTUP_DELAY_SECONDS: a short pause after both
// sockets are bound, before the first DISCOVERY flood, so sibling
// peers started in the same batch finish their own binds.
const StartupSettleDelay = 2 * time.Second

// MetricsLogInterval is how often runPeer logs runtime/transfer counters
// via monitor.LogPeriodic for the life of the process.
const MetricsLogInterval = 30 * time.Second

var (
	baseDir      string
	registryPath string
	adjacencyPath string
	interactive  bool
)

var rootCmd = &cobra.Command{
	Use:   "p2p-peer <peer_id> <file_name_1> [<file_name_2> …]",
	Short: "Start a peer of the chunked file-sharing swarm",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runPeer,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Sugar.Error(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&baseDir, "base-dir", "data", "root directory holding per-peer chunk subdirectories and metadata sidecars")
	rootCmd.Flags().StringVar(&registryPath, "registry", "peers.cfg", "path to the peer registry file")
	rootCmd.Flags().StringVar(&adjacencyPath, "adjacency", "adjacency.cfg", "path to the adjacency list file")
	rootCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "start an interactive debug shell")
}

func runPeer(cmd *cobra.Command, args []string) error {
	peerIDArg, fileNames := args[0], args[1:]

	peerRegistry, err := config.LoadPeerRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("load peer registry: %w", err)
	}
	adjacency, err := config.LoadAdjacency(adjacencyPath)
	if err != nil {
		return fmt.Errorf("load adjacency file: %w", err)
	}

	id, err := parsePeerID(peerIDArg)
	if err != nil {
		os.Exit(1)
	}

	self, ok := peerRegistry[id]
	if !ok {
		logger.Sugar.Errorf("peer id %d not found in registry %s", id, registryPath)
		os.Exit(1)
	}
	if _, ok := adjacency[id]; !ok {
		logger.Sugar.Errorf("peer id %d not found in adjacency file %s", id, adjacencyPath)
		os.Exit(1)
	}

	neighbors := config.NeighborEndpoints(id, adjacency, peerRegistry)

	reg := registry.New()
	fileStore := store.New(baseDir, id, reg)
	disc := discovery.New(self.Endpoint, fileStore, reg)
	disc.SetNeighbors(neighbors)
	disc.SetDeclaredRate(self.DeclaredRate)
	xfer := transfer.New(self.Endpoint, self.DeclaredRate, fileStore, fileStore)
	disc.SetChunkPusher(xfer)

	orch := orchestrator.New(id, baseDir, fileStore, reg, disc, xfer)
	if err := orch.Start(); err != nil {
		return fmt.Errorf("start peer %d: %w", id, err)
	}

	go monitor.LogPeriodic(MetricsLogInterval)

	logger.Sugar.Infof("[p2p-peer] peer %d settling for %s before flooding", id, StartupSettleDelay)
	time.Sleep(StartupSettleDelay)

	for _, fileName := range fileNames {
		go func(fileName string) {
			ctx := context.Background()
			if err := orch.RequestFile(ctx, fileName); err != nil {
				logger.Sugar.Errorf("[p2p-peer] download of %s failed: %v", fileName, err)
				return
			}
			logger.Sugar.Infof("[p2p-peer] download of %s complete", fileName)
		}(fileName)
	}

	if interactive {
		runShell(orch)
		return nil
	}

	select {}
}

func parsePeerID(s string) (peerutil.PeerID, error) {
	var id int
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil {
		logger.Sugar.Errorf("invalid peer id %q", s)
		return 0, err
	}
	return peerutil.PeerID(id), nil
}

func main() {
	Execute()
}
