// Command replica boots a single chained-BFT consensus participant.
// Flag and config handling follows the teacher's cmd/consensus/main.go
// use of github.com/spf13/pflag, scaled down from the teacher's full
// cmd.FlowNode builder DSL (which wires an entire node's worth of
// unrelated engines) to just this module's own component graph, with
// github.com/spf13/cobra/viper added for subcommand and config-file
// support in the idiom the rest of the retrieval pack's CLIs use.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dapperlabs/hotshot-consensus/consensus"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/verification"
	"github.com/dapperlabs/hotshot-consensus/model/flow"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
	metricspkg "github.com/dapperlabs/hotshot-consensus/module/metrics"
	"github.com/dapperlabs/hotshot-consensus/network"

	"github.com/cloudflare/circl/sign/bls"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replica",
		Short: "Run a chained-BFT consensus replica",
		RunE:  runReplica,
	}

	flags := cmd.Flags()
	flags.String("node-id", "", "32-byte hex node identifier")
	flags.String("data-dir", "./data", "badger database directory")
	flags.Duration("timeout", 4*time.Second, "per-view timeout")
	flags.Duration("round-start-delay", 0, "liveness-slack delay before producing a proposal")
	flags.String("config", "", "optional YAML config file (flags given on the command line take precedence)")

	viper.BindPFlags(flags)
	return cmd
}

func runReplica(cmd *cobra.Command, args []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("could not read config file: %w", err)
		}
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	nodeIDHex := viper.GetString("node-id")
	selfID, err := flow.HexStringToIdentifier(nodeIDHex)
	if err != nil {
		return fmt.Errorf("could not parse node-id: %w", err)
	}

	dataDir := viper.GetString("data-dir")
	opts := badger.DefaultOptions(dataDir)
	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("could not open badger database at %s: %w", dataDir, err)
	}
	defer db.Close()

	pub, priv, err := bls.KeyGen[bls.KeyMinSig]([]byte(nodeIDHex), nil, nil)
	if err != nil {
		return fmt.Errorf("could not generate signing key: %w", err)
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return fmt.Errorf("could not marshal signing public key: %w", err)
	}
	signer := verification.NewSigner(selfID, priv)

	// TODO: replace with a real bootstrap-file loaded identity list once
	// the network/membership distribution mechanism lands.
	identities := flow.IdentityList{
		{NodeID: selfID, Address: "127.0.0.1:0", Role: flow.RoleConsensus, Stake: 1, PublicKey: pubBytes},
	}

	net := network.New(log)
	metrics := metricspkg.NewCollector()

	genesis := &model.Leaf{View: 0}
	genesisQC := &model.QuorumCertificate{Kind: model.QuorumQCKind, View: 0, BlockID: genesis.ID()}

	participant, err := consensus.NewParticipant(
		selfID,
		identities,
		genesis,
		genesisQC,
		signer,
		net,
		db,
		log,
		consensus.WithTimeout(viper.GetDuration("timeout")),
		consensus.WithRoundStartDelay(viper.GetDuration("round-start-delay")),
		consensus.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("could not construct participant: %w", err)
	}

	exit, done := participant.Start()
	log.Info().Str("node_id", selfID.String()).Msg("replica started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("shutdown signal received")
		exit()
	}()

	<-done
	log.Info().Msg("replica stopped")
	return nil
}
