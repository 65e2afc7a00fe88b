// Command mementoctl inspects and converts a persisted memento snapshot: it
// validates referential integrity, prints the manifest or a single memento,
// and exports the snapshot to a directory with another codec.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"brooklyn/internal/codec"
	"brooklyn/internal/config"
	"brooklyn/internal/objectstore"
	"brooklyn/internal/persister"
	"brooklyn/pkg/memento"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "mementoctl: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}
	return 0
}

type globalFlags struct {
	configPath string
	driver     string
	fsRoot     string
	codec      string
}

// env carries what every subcommand needs once the store is open.
type env struct {
	cfg       config.Config
	log       logrus.FieldLogger
	store     objectstore.Store
	persister *persister.Persister
}

func (g *globalFlags) open(ctx context.Context, stderr io.Writer) (*env, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.driver != "" {
		cfg.Persistence.Driver = g.driver
	}
	if g.fsRoot != "" {
		cfg.Persistence.FSRoot = g.fsRoot
	}
	if g.codec != "" {
		cfg.Persistence.Codec = g.codec
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := cfg.Log.NewLogger(stderr)
	if err != nil {
		return nil, err
	}
	c, err := codec.ByName(cfg.Persistence.Codec)
	if err != nil {
		return nil, err
	}
	store, err := objectstore.Open(ctx, cfg.Persistence, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Persistence.Driver, err)
	}
	return &env{
		cfg:       cfg,
		log:       logger,
		store:     store,
		persister: persister.New(store, c, persister.WithLogger(logger)),
	}, nil
}

func (e *env) close() error { return e.store.Close() }

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "mementoctl",
		Short:         "Inspect and convert persisted memento snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&g.driver, "driver", "", "object store driver, overriding config")
	root.PersistentFlags().StringVar(&g.fsRoot, "fs-root", "", "root directory for the fs driver, overriding config")
	root.PersistentFlags().StringVar(&g.codec, "codec", "", "codec of the stored snapshot, overriding config")

	root.AddCommand(
		newValidateCmd(g),
		newManifestCmd(g),
		newShowCmd(g),
		newExportCmd(g),
	)
	return root
}

// withEnv opens the store for the duration of fn.
func withEnv(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, e *env) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := g.open(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.close(); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}()
	return fn(ctx, e)
}

// ErrInconsistent is returned by validate when the snapshot has dangling
// references.
var ErrInconsistent = errors.New("snapshot is inconsistent")

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the referential integrity of the stored snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, g, func(ctx context.Context, e *env) error {
				agg, err := e.persister.Load(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				err = memento.ValidateAll(agg)
				var merr *multierror.Error
				if errors.As(err, &merr) {
					for _, problem := range merr.Errors {
						fmt.Fprintln(out, problem)
					}
					return fmt.Errorf("%w: %d problems", ErrInconsistent, len(merr.Errors))
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "snapshot consistent: %d entities, %d locations, %d policies, %d enrichers, %d feeds, %d catalog items\n",
					len(agg.EntityIDs()), len(agg.LocationIDs()), len(agg.PolicyIDs()), len(agg.EnricherIDs()),
					len(agg.FeedIDs()), len(agg.CatalogItemIDs()))
				return nil
			})
		},
	}
}

func newManifestCmd(g *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Print the id and type of every stored object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, g, func(ctx context.Context, e *env) error {
				mf, err := e.persister.LoadManifest(ctx)
				if err != nil {
					return err
				}
				return writeFormatted(cmd.OutOrStdout(), format, mf)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "json", "output format: json|yaml")
	return cmd
}

func writeFormatted(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %s", format)
	}
}

func newShowCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print one stored memento as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, g, func(ctx context.Context, e *env) error {
				m, err := e.persister.Find(ctx, args[0])
				if err != nil {
					return err
				}
				data, err := codec.JSON{}.Encode(m)
				if err != nil {
					return err
				}
				var buf bytes.Buffer
				if err := json.Indent(&buf, data, "", "  "); err != nil {
					return err
				}
				buf.WriteByte('\n')
				_, err = buf.WriteTo(cmd.OutOrStdout())
				return err
			})
		},
	}
}

func newExportCmd(g *globalFlags) *cobra.Command {
	var (
		to      string
		toCodec string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the stored snapshot into a directory, re-encoded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if to == "" {
				return errors.New("--to is required")
			}
			target, err := codec.ByName(toCodec)
			if err != nil {
				return err
			}
			return withEnv(cmd, g, func(ctx context.Context, e *env) (err error) {
				agg, err := e.persister.Load(ctx)
				if err != nil {
					return err
				}
				dst, err := objectstore.Open(ctx, config.Persistence{Driver: string(objectstore.DriverFilesystem), FSRoot: to}, e.log)
				if err != nil {
					return err
				}
				defer func() {
					if cerr := dst.Close(); cerr != nil && err == nil {
						err = fmt.Errorf("close export store: %w", cerr)
					}
				}()
				if err := persister.New(dst, target, persister.WithLogger(e.log)).Checkpoint(ctx, agg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d objects to %s as %s\n", memento.ManifestOf(agg).Len(), to, target.Name())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target directory")
	cmd.Flags().StringVar(&toCodec, "to-codec", codec.NameJSON, "codec to write: json|msgpack")
	return cmd
}
