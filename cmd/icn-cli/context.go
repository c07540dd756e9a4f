package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/intercoop-network/dag-core/internal/dagstore"
	"github.com/intercoop-network/dag-core/internal/identity"
	"github.com/intercoop-network/dag-core/internal/join"
	"github.com/intercoop-network/dag-core/internal/membership"
	"github.com/intercoop-network/dag-core/internal/pipeline"
	"github.com/intercoop-network/dag-core/internal/policy"
	"github.com/intercoop-network/dag-core/internal/receipt"
	"github.com/intercoop-network/dag-core/internal/revocation"
	"github.com/intercoop-network/dag-core/internal/storekv"
	"github.com/intercoop-network/dag-core/internal/trustbundle"
	"github.com/intercoop-network/dag-core/pkg/config"
	"github.com/intercoop-network/dag-core/pkg/utils"
)

// appContext bundles the wired core components a command handler needs,
// built fresh per invocation: a CLI process is short-lived, so there is no
// shared state across invocations to protect with a singleton.
type appContext struct {
	Config       *config.Config
	Logger       *logrus.Logger
	Store        dagstore.Store
	Membership   *membership.Index
	Policies     *policy.Store
	Revocations  *revocation.Registry
	Receipts     *receipt.Index
	Bundles      *trustbundle.Store
	Join         *join.Manager
	Orchestrator *pipeline.Orchestrator
	Resolver     identity.PublicKeyResolver
	Key          *identity.KeyPair
}

// Global flags shared by every command family.
var (
	flagOutput  string
	flagDagDir  string
	flagKeyFile string
)

func newAppContext(requireKey bool) (*appContext, error) {
	cfg, err := config.Load(os.Getenv("ICN_CONFIG"))
	if err != nil {
		return nil, err
	}
	if flagDagDir != "" {
		cfg.Storage.Backend = "bbolt"
		cfg.Storage.DBPath = flagDagDir
	}

	logger := logrus.New()
	if lvl, lerr := logrus.ParseLevel(cfg.Logging.Level); lerr == nil {
		logger.SetLevel(lvl)
	}

	var kv storekv.Store
	switch cfg.Storage.Backend {
	case "bbolt":
		if cfg.Storage.DBPath == "" {
			return nil, utils.New(utils.KindStructural, "bbolt storage backend requires a db path (--dag-dir)")
		}
		bolt, err := storekv.OpenBoltStore(cfg.Storage.DBPath)
		if err != nil {
			return nil, utils.Wrap(utils.KindStorage, err, "open bbolt store at "+cfg.Storage.DBPath)
		}
		kv = bolt
	default:
		kv = storekv.NewMemoryStore()
	}

	resolver := identity.SelfResolver{}
	store := dagstore.New(kv, logger, resolver)
	idx := membership.New(kv)
	revocations := revocation.NewRegistry(kv, resolver)
	policies, err := policy.Load(context.Background(), kv)
	if err != nil {
		return nil, err
	}
	enforcer := policy.NewEnforcer(policies, idx, revocations)
	processor := policy.NewProcessor(policies, resolver)
	joinMgr := join.NewManager(store, idx, kv, resolver)
	receipts := receipt.NewIndex(kv)
	bundles := trustbundle.NewStore(kv)
	orch := pipeline.NewOrchestrator(store, enforcer, processor, joinMgr, idx, revocations, receipts, bundles, resolver)

	var key *identity.KeyPair
	if requireKey {
		if flagKeyFile == "" {
			return nil, utils.New(utils.KindStructural, "this command requires --key")
		}
		key, err = loadOrCreateKey(flagKeyFile)
		if err != nil {
			return nil, err
		}
	}

	return &appContext{
		Config: cfg, Logger: logger, Store: store, Membership: idx,
		Policies: policies, Revocations: revocations, Receipts: receipts,
		Bundles: bundles, Join: joinMgr, Orchestrator: orch,
		Resolver: resolver, Key: key,
	}, nil
}

// loadOrCreateKey reads a hex-encoded Ed25519 seed from path, or generates
// and persists a fresh one if the file does not exist.
func loadOrCreateKey(path string) (*identity.KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		seed, decErr := hex.DecodeString(string(raw))
		if decErr != nil {
			return nil, utils.Wrap(utils.KindStructural, decErr, "decode key file "+path)
		}
		return identity.KeyPairFromSeed(seed)
	}
	if !os.IsNotExist(err) {
		return nil, utils.Wrap(utils.KindStorage, err, "read key file "+path)
	}
	kp, genErr := identity.GenerateKeyPair()
	if genErr != nil {
		return nil, genErr
	}
	seed := kp.PrivateKey.Seed()
	if werr := os.WriteFile(path, []byte(hex.EncodeToString(seed)), 0o600); werr != nil {
		return nil, utils.Wrap(utils.KindStorage, werr, "persist generated key to "+path)
	}
	return kp, nil
}

// printResult renders v as pretty JSON when --output json is set, or as a
// plain Go-format line otherwise.
func printResult(v interface{}) error {
	if flagOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Printf("%+v\n", v)
	return nil
}

// printError renders err the same way printResult renders a success value,
// so `--output json` callers get structured errors too.
func printError(err error) {
	if flagOutput == "json" {
		enc := json.NewEncoder(os.Stderr)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]string{
			"error": err.Error(),
			"kind":  utils.KindOf(err).String(),
		})
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
}
