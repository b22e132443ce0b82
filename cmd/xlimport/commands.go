package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/JonMunkholm/xlimport/internal/config"
	"github.com/JonMunkholm/xlimport/internal/core"
	"github.com/JonMunkholm/xlimport/internal/logging"
	"github.com/JonMunkholm/xlimport/internal/pgstore"
	"github.com/spf13/cobra"
)

// NewRootCommand builds the xlimport command tree writing to the given streams.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "xlimport",
		Short:         "Reconcile spreadsheet rows into the record store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newImportCommand(), newProfilesCommand())
	return root
}

func newImportCommand() *cobra.Command {
	var (
		profileFlag      string
		noUpdateFlag     bool
		noCreateFlag     bool
		noCreateRefsFlag bool
		dryRunFlag       bool
		memoryFlag       bool
		maxRowsFlag      int
		jsonFlag         bool
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a workbook or CSV file",
		Args:  cobra.ExactArgs(1),
		Example: `  xlimport import suivi.xlsx                   # Create and update projects
  xlimport import suivi.csv --dry-run          # Report what would change
  xlimport import suivi.xlsx --no-create       # Only update existing projects
  xlimport import suivi.xlsx --memory --json   # Try a file without a database`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if memoryFlag {
				if err := os.Setenv("STORE_MEMORY", "true"); err != nil {
					return report(cmd, fmt.Errorf("select memory store: %w", err))
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return report(cmd, err)
			}
			logger := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

			store, closeStore, err := openStore(cmd, cfg)
			if err != nil {
				return report(cmd, err)
			}
			defer closeStore()

			if profileFlag == "" {
				profileFlag = cfg.Import.DefaultProfile
			}
			opts := core.Options{
				UpdateExisting:   cfg.Import.UpdateExisting && !noUpdateFlag,
				CreateMissing:    cfg.Import.CreateMissing && !noCreateFlag,
				CreateReferences: cfg.Import.CreateReferences && !noCreateRefsFlag,
				DryRun:           dryRunFlag,
				MaxRows:          maxRowsFlag,
			}

			f, err := os.Open(args[0])
			if err != nil {
				return report(cmd, err)
			}
			defer f.Close()

			svc := core.NewService(store, core.ServiceConfig{
				MaxFileSize:   cfg.Import.MaxFileSize,
				MaxConcurrent: 1,
				Timeout:       cfg.Import.Timeout,
				RunRetention:  cfg.Import.RunRetention,
			}, logger)

			ctx := core.ContextWithRequester(cmd.Context(), core.Requester{Client: "cli"})
			result, err := svc.Import(ctx, profileFlag, filepath.Base(args[0]), f, opts)
			if result != nil {
				if jsonFlag {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if encErr := enc.Encode(result); encErr != nil {
						return encErr
					}
				} else if logErr := result.WriteLog(cmd.OutOrStdout()); logErr != nil {
					return logErr
				}
			}
			if err != nil {
				return report(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileFlag, "profile", "p", "",
		"Import profile (default from IMPORT_DEFAULT_PROFILE)")
	cmd.Flags().BoolVar(&noUpdateFlag, "no-update", false,
		"Skip rows whose record already exists")
	cmd.Flags().BoolVar(&noCreateFlag, "no-create", false,
		"Skip rows whose record does not exist yet")
	cmd.Flags().BoolVar(&noCreateRefsFlag, "no-create-refs", false,
		"Leave unknown people and organizations unset instead of creating them")
	cmd.Flags().BoolVar(&dryRunFlag, "dry-run", false,
		"Process every row and roll the whole run back")
	cmd.Flags().BoolVar(&memoryFlag, "memory", false,
		"Use an in-memory store instead of DATABASE_URL")
	cmd.Flags().IntVar(&maxRowsFlag, "max-rows", 0,
		"Stop after this many data rows (0 = all)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false,
		"Print the run result as JSON instead of the text report")

	return cmd
}

func newProfilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List import profiles and the headers they recognize",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, p := range core.All() {
				fmt.Fprintf(w, "%s\t%s\tkey=%s\n", p.Key, p.Label, p.KeyAttr)
				for _, c := range p.Columns {
					kind := core.KindText.String()
					if spec, ok := p.Attribute(c.Attribute); ok && c.Attribute != p.KeyAttr {
						kind = spec.Kind.String()
					}
					fmt.Fprintf(w, "  %s\t%s\t%s\n", c.Header, c.Attribute, kind)
				}
			}
			return w.Flush()
		},
	}
}

// openStore returns the configured store and its release function.
func openStore(cmd *cobra.Command, cfg *config.Config) (core.Store, func(), error) {
	if cfg.Database.Memory {
		return core.NewMemoryStore(), func() {}, nil
	}
	pg, err := pgstore.Connect(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

// report prints err with its support code and returns it.
func report(cmd *cobra.Command, err error) error {
	msg := core.MapError(err)
	if core.IsUserFacing(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %s (%s). %s\n  %v\n", msg.Message, msg.Code, msg.Action, err)
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
	}
	return err
}
