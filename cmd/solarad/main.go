// Solara state daemon.
//
// Usage:
//
//	solarad init --genesis=genesis.json [--datadir=...]   Build the genesis state
//	solarad status [--datadir=...]                        Print the current tip
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/solara-labs/solara-chain/config"
	"github.com/solara-labs/solara-chain/internal/log"
	"github.com/solara-labs/solara-chain/internal/smt"
	"github.com/solara-labs/solara-chain/internal/state"
	"github.com/solara-labs/solara-chain/internal/storage"
	"github.com/solara-labs/solara-chain/pkg/block"
)

// tipKey is the storage key holding the canonical tip header.
var tipKey = []byte("meta/tip")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "--help", "-h", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: solarad <init|status> [flags]")
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	genesisPath := fs.String("genesis", "genesis.json", "path to the genesis document")
	datadir := fs.String("datadir", config.DefaultDataDir(), "data directory")
	level := fs.String("log-level", "info", "log level")
	jsonLog := fs.Bool("log-json", false, "structured JSON logs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	log.Init(*level, *jsonLog)

	g, err := config.LoadGenesis(*genesisPath)
	if err != nil {
		return err
	}

	db, err := openDB(*datadir)
	if err != nil {
		return err
	}
	defer db.Close()

	if has, err := db.Has(tipKey); err != nil {
		return err
	} else if has {
		return errors.New("data directory already initialized")
	}

	store, err := smt.NewNodeStore(storage.NewPrefixDB(db, []byte("smt/")), smt.DefaultCacheSize)
	if err != nil {
		return err
	}
	sealed, err := state.NewGenesisState(store, g)
	if err != nil {
		return err
	}
	if err := db.Put(tipKey, sealed.Header().SigningBytes()); err != nil {
		return err
	}

	fmt.Printf("initialized %s at %s\n", g.Network, *datadir)
	fmt.Printf("genesis header: %s\n", sealed.Header().Hash())
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	datadir := fs.String("datadir", config.DefaultDataDir(), "data directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openDB(*datadir)
	if err != nil {
		return err
	}
	defer db.Close()

	header, err := loadTip(db)
	if err != nil {
		return err
	}
	fmt.Printf("network:        %s\n", header.Network)
	fmt.Printf("height:         %d\n", header.Height)
	fmt.Printf("tip:            %s\n", header.Hash())
	fmt.Printf("coins root:     %s\n", header.CoinsRoot)
	fmt.Printf("pools root:     %s\n", header.PoolsRoot)
	fmt.Printf("stakes root:    %s\n", header.StakesRoot)
	fmt.Printf("fee pool:       %s\n", header.FeePool.Dec())
	fmt.Printf("fee multiplier: %s\n", header.FeeMultiplier.Dec())
	return nil
}

func openDB(datadir string) (storage.DB, error) {
	return storage.NewBadger(filepath.Join(datadir, "state"))
}

func loadTip(db storage.DB) (*block.Header, error) {
	raw, err := db.Get(tipKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errors.New("data directory not initialized, run solarad init")
		}
		return nil, err
	}
	return state.DecodeHeader(raw)
}
