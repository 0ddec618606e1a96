// Interactive viewer and proofreading shell for label volumes on a DVID server.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/twinj/uuid"

	"github.com/janelia-flyem/dvidviewer/config"
	"github.com/janelia-flyem/dvidviewer/dvid"
	"github.com/janelia-flyem/dvidviewer/labels"
	"github.com/janelia-flyem/dvidviewer/mergequeue"
	"github.com/janelia-flyem/dvidviewer/mutlog"
	"github.com/janelia-flyem/dvidviewer/session"
	"github.com/janelia-flyem/dvidviewer/store"
	"github.com/janelia-flyem/dvidviewer/store/dvidstore"
	"github.com/janelia-flyem/dvidviewer/store/memstore"
	"github.com/janelia-flyem/dvidviewer/terminal"
)

const helpMessage = `
dvidviewer is an interactive shell for viewing and merging bodies of a DVID label volume

Usage: dvidviewer [options]

  -c, --config    =string   TOML configuration file
      --server    =string   DVID server address, e.g., "emdata.janelia.org:8000"
      --uuid      =string   UUID of the version node to view
      --labels    =string   Name of the label data instance
      --grayscale =string   Name of the grayscale data instance
      --journal   =string   File recording merge decisions
      --recover   (flag)    Re-queue merges left unsaved in the journal
      --depth     =number   Merges held before the oldest is saved
      --demo      (flag)    View a generated in-memory volume instead of a server
  -v, --verbose   (flag)    Run in verbose mode.
  -h, --help      (flag)    Show help message

Settings given on the command line override the configuration file.
Enter 'help' at the shell prompt for viewer commands.
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configFile string
	var demo, verbose, help bool
	overrides := config.Default()

	flagSet := pflag.NewFlagSet("dvidviewer", pflag.ContinueOnError)
	flagSet.Usage = func() { fmt.Print(helpMessage) }
	flagSet.StringVarP(&configFile, "config", "c", "", "")
	flagSet.StringVar(&overrides.Server.Address, "server", "", "")
	flagSet.StringVar(&overrides.Server.UUID, "uuid", "", "")
	flagSet.StringVar(&overrides.Server.Labels, "labels", "", "")
	flagSet.StringVar(&overrides.Server.Grayscale, "grayscale", "", "")
	flagSet.StringVar(&overrides.Merge.Journal, "journal", "", "")
	flagSet.BoolVar(&overrides.Merge.Recover, "recover", false, "")
	flagSet.IntVar(&overrides.Merge.QueueDepth, "depth", mergequeue.DefaultDepth, "")
	flagSet.BoolVar(&demo, "demo", false, "")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "")
	flagSet.BoolVarP(&help, "help", "h", false, "")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if help || flagSet.NArg() != 0 {
		flagSet.Usage()
		return nil
	}

	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return err
		}
	}
	applyOverrides(flagSet, cfg, overrides)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if verbose {
		dvid.SetLogMode(dvid.DebugMode)
	}
	cfg.Logging.SetLogger()
	defer dvid.Shutdown()

	ctx := context.Background()
	st, err := openStore(ctx, cfg, demo)
	if err != nil {
		return err
	}
	if c, ok := st.(*store.Cache); ok {
		defer func() {
			attempts, hits := c.Stats()
			dvid.Infof("Subvolume cache served %d of %d plane fetches\n", hits, attempts)
		}()
	}

	sessionID := uuid.NewV4().String()
	recorders, pending, err := openRecorders(cfg, sessionID)
	if err != nil {
		return err
	}
	defer func() {
		if err := recorders.Close(); err != nil {
			dvid.Errorf("error closing merge recorders: %v\n", err)
		}
	}()

	q := mergequeue.New(st, cfg.Merge.QueueDepth)
	if len(recorders) != 0 {
		q.SetRecorder(recorders, sessionID)
	}
	sc, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	sess, err := session.New(ctx, st, q, sc)
	if err != nil {
		return err
	}
	dvid.Infof("Session %s started\n", sessionID)

	sh := terminal.New(sess, os.Stdin, os.Stdout)
	defer sh.Close()
	if len(pending) != 0 {
		if _, err := sess.Recover(ctx, pending); err != nil {
			return err
		}
	}

	stopSig := make(chan os.Signal, 1)
	go func() {
		sig := <-stopSig
		dvid.Warningf("Stop signal captured: %q.  Unsaved merges: %d\n", sig, q.Len())
		if cfg.Merge.Journal != "" && q.Len() != 0 {
			dvid.Warningf("Restart with --recover to re-queue unsaved merges from %s\n", cfg.Merge.Journal)
		}
		recorders.Close()
		dvid.Shutdown()
		os.Exit(1)
	}()
	signal.Notify(stopSig, os.Interrupt, syscall.SIGTERM)

	return sh.Run(ctx)
}

// applyOverrides copies settings given on the command line into cfg.
func applyOverrides(flagSet *pflag.FlagSet, cfg, overrides *config.Config) {
	if flagSet.Changed("server") {
		cfg.Server.Address = overrides.Server.Address
	}
	if flagSet.Changed("uuid") {
		cfg.Server.UUID = overrides.Server.UUID
	}
	if flagSet.Changed("labels") {
		cfg.Server.Labels = overrides.Server.Labels
	}
	if flagSet.Changed("grayscale") {
		cfg.Server.Grayscale = overrides.Server.Grayscale
	}
	if flagSet.Changed("journal") {
		cfg.Merge.Journal = overrides.Merge.Journal
	}
	if flagSet.Changed("recover") {
		cfg.Merge.Recover = overrides.Merge.Recover
	}
	if flagSet.Changed("depth") {
		cfg.Merge.QueueDepth = overrides.Merge.QueueDepth
	}
}

func openStore(ctx context.Context, cfg *config.Config, demo bool) (store.Store, error) {
	var st store.Store
	if demo {
		st = demoVolume()
	} else {
		ds, err := dvidstore.New(cfg.StoreConfig())
		if err != nil {
			return nil, err
		}
		version, err := ds.ServerVersion(ctx)
		if err != nil {
			return nil, err
		}
		dvid.Infof("Connected to DVID %s at %s as user %q\n", version, cfg.Server.Address, ds.User())
		st = ds
	}
	if numBytes := cfg.CacheBytes(); numBytes > 0 {
		st = store.NewCache(st, numBytes)
	}
	return st, nil
}

// openRecorders opens the merge journal and Kafka publisher if configured
// and returns the merges left unsaved in the journal if recovery is on.
func openRecorders(cfg *config.Config, sessionID string) (mutlog.Multi, []labels.Decision, error) {
	var recorders mutlog.Multi
	var pending []labels.Decision
	if cfg.Merge.Journal != "" {
		fl, recovered, err := mutlog.OpenJournal(cfg.Merge.Journal, sessionID, cfg.Merge.Recover)
		if err != nil {
			return nil, nil, err
		}
		recorders = append(recorders, fl)
		pending = recovered
	}
	kl, err := mutlog.NewKafkaLog(cfg.Kafka, cfg.Server.UUID)
	if err != nil {
		recorders.Close()
		return nil, nil, err
	}
	if kl != nil {
		recorders = append(recorders, kl)
	}
	return recorders, pending, nil
}

// demoVolume returns a 256 x 256 x 64 volume tiled with 32 x 32 columns of
// distinct labels.  Labels carry high bits above the display mask.
func demoVolume() *memstore.Store {
	const tile = 32
	st := memstore.New(dvid.Point3d{0, 0, 0}, dvid.Point3d{255, 255, 63}, 3)
	for ty := int32(0); ty < 256/tile; ty++ {
		for tx := int32(0); tx < 256/tile; tx++ {
			label := uint64(1)<<32 | uint64(ty*8+tx+1)
			gray := byte(40 + 20*((tx+ty)%8))
			minPt := dvid.Point3d{tx * tile, ty * tile, 0}
			maxPt := dvid.Point3d{tx*tile + tile - 1, ty*tile + tile - 1, 63}
			st.Fill(minPt, maxPt, label, gray)
		}
	}
	return st
}
