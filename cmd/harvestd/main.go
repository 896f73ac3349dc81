// Command harvestd serves the extraction API, or runs a one-shot
// extraction against local CSV files without a server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/carlodf/harvest/catalog"
	"github.com/carlodf/harvest/engine"
	"github.com/carlodf/harvest/opener"
	"github.com/carlodf/harvest/server"
	"github.com/carlodf/harvest/uploads"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:          "harvestd",
		Short:        "Unify heterogeneous CSV data into one canonical table",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			lvl, err := log.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("bad log level %q: %w", logLevel, err)
			}
			log.SetLevel(lvl)
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logrus level (debug, info, warn, error)")
	cmd.AddCommand(serveCmd(), extractCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		addr      string
		maxUpload int64
		mysqlDSN  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the extraction HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var store catalog.Store
			if mysqlDSN != "" {
				sqlStore, err := catalog.OpenSQL(mysqlDSN)
				if err != nil {
					return err
				}
				defer sqlStore.Close()
				if err := sqlStore.EnsureSchema(ctx); err != nil {
					return err
				}
				store = sqlStore
				log.Info("catalog backed by mysql")
			} else {
				store = catalog.NewInMem()
				log.Info("catalog held in memory")
			}

			srv := &http.Server{
				Addr: addr,
				Handler: server.New(store, uploads.NewRegistry(),
					server.WithMaxUploadBytes(maxUpload)).Handler(),
			}
			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			log.WithField("addr", addr).Info("listening")

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
				log.Info("shutting down")
				return srv.Shutdown(context.Background())
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().Int64Var(&maxUpload, "max-upload-bytes", server.DefaultMaxUploadBytes, "upload size ceiling")
	cmd.Flags().StringVar(&mysqlDSN, "mysql-dsn", "", "catalog MySQL DSN (in-memory store when empty)")
	return cmd
}

func extractCmd() *cobra.Command {
	var (
		catalogPath string
		systemName  string
		dataSpecs   []string
		outPath     string
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract one data system from local CSV files",
		Example: `  harvestd extract --catalog catalog.json --system Radiology \
    --data "Patients=./data/patients*.csv" --data "Encounters=./data/encounters.csv" \
    --out extracted.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := catalog.LoadFile(ctx, catalogPath)
			if err != nil {
				return err
			}
			systemID, err := findSystem(ctx, store, systemName)
			if err != nil {
				return err
			}
			binder, err := bindFiles(ctx, store, systemID, dataSpecs)
			if err != nil {
				return err
			}

			result, err := engine.New(store).Extract(ctx, systemID, binder)
			if err != nil {
				return err
			}
			if outPath == "" || outPath == "-" {
				_, err = os.Stdout.Write(result.CSV)
				return err
			}
			if err := os.WriteFile(outPath, result.CSV, 0o644); err != nil {
				return err
			}
			log.WithFields(log.Fields{"rows": result.Rows, "out": outPath}).Info("extraction complete")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&catalogPath, "catalog", "", "catalog JSON file")
	f.StringVar(&systemName, "system", "", "data system name")
	f.StringArrayVar(&dataSpecs, "data", nil, "source binding as <dataSource>=<file-or-glob>, repeatable")
	f.StringVarP(&outPath, "out", "o", "-", "output path (- for stdout)")
	markRequired(f, "catalog", "system", "data")
	return cmd
}

func markRequired(f *pflag.FlagSet, names ...string) {
	for _, n := range names {
		if err := cobra.MarkFlagRequired(f, n); err != nil {
			panic(err)
		}
	}
}

func findSystem(ctx context.Context, store catalog.Store, name string) (int64, error) {
	systems, err := store.DataSystems(ctx)
	if err != nil {
		return 0, err
	}
	for _, sys := range systems {
		if sys.Name == name {
			return sys.ID, nil
		}
	}
	return 0, fmt.Errorf("data system %q not found in catalog file", name)
}

// fileBinder resolves data sources to local file openers, satisfying
// engine.PayloadResolver for offline runs.
type fileBinder map[int64][]opener.Opener

func (b fileBinder) Payloads(dataSourceID int64) ([]opener.Opener, bool) {
	ops, ok := b[dataSourceID]
	return ops, ok
}

// bindFiles parses --data specs of the form name=glob into per-source
// opener lists. Multi-file globs concatenate in lexicographic order.
func bindFiles(ctx context.Context, store catalog.Store, systemID int64, specs []string) (fileBinder, error) {
	sources, err := store.DataSourcesBySystem(ctx, systemID)
	if err != nil {
		return nil, err
	}
	byName := map[string]int64{}
	for _, src := range sources {
		byName[src.Name] = src.ID
	}

	binder := fileBinder{}
	for _, spec := range specs {
		name, glob, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("bad --data spec %q, want <dataSource>=<file-or-glob>", spec)
		}
		id, ok := byName[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("data source %q not in system", name)
		}
		ops, err := opener.FilesFromSpec(glob)
		if err != nil {
			return nil, err
		}
		binder[id] = ops
	}
	return binder, nil
}
