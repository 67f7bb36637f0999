package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nidb-uploader/internal/cli"
	"nidb-uploader/internal/config"
	"nidb-uploader/internal/gui"
	"nidb-uploader/internal/identity"
	"nidb-uploader/internal/mockarchive"
	"nidb-uploader/internal/profiles"
)

var (
	cfgFile string
	v       = config.New()
	env     *cli.Env

	// readPassword is swapped in tests.
	readPassword = term.ReadPassword

	// bindings maps config keys to the flags of one command. Several commands
	// share keys, so only the running command's flags are bound.
	bindings = map[*cobra.Command]map[string]string{}

	rootCmd = &cobra.Command{
		Use:   "nidb-uploader",
		Short: "Find, anonymize and upload imaging data to a NiDB archive",
		Long: `nidb-uploader searches a directory for DICOM, PAR/REC, NIfTI and EEG files,
pseudonymizes patient identifiers and uploads the data in batches.

Run without a command to open the graphical wizard.`,
		PersistentPreRunE: setup,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gui.NewApp(env).Run()
			return nil
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: "+config.Dir()+"/config.yaml)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("server", "", "archive server URL")
	flags.String("username", "", "archive username")
	flags.Int("profile", -1, "saved connection profile index")
	flags.String("proxy", "none", "proxy type (none, default, socks5, http, httpcaching)")

	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("connection.server", flags.Lookup("server"))
	_ = v.BindPFlag("connection.username", flags.Lookup("username"))
	_ = v.BindPFlag("connection.profile", flags.Lookup("profile"))
	_ = v.BindPFlag("proxy.type", flags.Lookup("proxy"))

	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(listsCmd())
	rootCmd.AddCommand(testConnectionCmd())
	rootCmd.AddCommand(connectionsCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(mockArchiveCmd())
}

func setup(cmd *cobra.Command, _ []string) error {
	for key, name := range bindings[cmd] {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	if err := config.ReadFile(v, cfgFile); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	// The GUI keeps its log in the file only.
	var console io.Writer
	if cmd.HasParent() {
		console = os.Stderr
	}
	e, err := cli.Open(cfg, os.Stdout, console)
	if err != nil {
		return err
	}
	env = e
	return nil
}

func bind(cmd *cobra.Command, keys map[string]string) {
	if bindings[cmd] == nil {
		bindings[cmd] = map[string]string{}
	}
	for key, name := range keys {
		bindings[cmd][key] = name
	}
}

func dataFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("dir", "d", "", "directory to search")
	cmd.Flags().StringP("modality", "m", "DICOM", "modality filter (DICOM, MR, CT, PET, NIFTI, PARREC, EEG, ET, VIDEO)")
	bind(cmd, map[string]string{"data_dir": "dir", "modality": "modality"})
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the files that would be uploaded",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cli.Scan(cmd.Context(), env, env.Cfg.DataDir, env.Cfg.Modality)
			return err
		},
	}
	dataFlags(cmd)
	return cmd
}

func uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Scan a directory, anonymize and upload the files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.Upload(cmd.Context(), env, env.Cfg.DataDir, env.Cfg.Modality)
		},
	}
	dataFlags(cmd)
	f := cmd.Flags()
	f.String("instance", "", "instance ID")
	f.String("project", "", "project ID")
	f.String("site", "", "site ID")
	f.String("equipment", "", "equipment ID")
	f.Bool("match-id-only", false, "match existing subjects by ID only")
	f.Bool("replace-name", true, "replace patient name with its pseudonym")
	f.Bool("replace-id", false, "replace patient ID with its pseudonym")
	f.Bool("year-only", true, "reduce birth date to the year")
	f.Bool("remove-birth-date", false, "replace birth date with 0000-00-00")
	f.String("temp-dir", "", "directory for anonymized copies")
	f.Int("workers", 4, "parallel anonymization workers")

	bind(cmd, map[string]string{
		"upload.instance_id":             "instance",
		"upload.project_id":              "project",
		"upload.site_id":                 "site",
		"upload.equipment_id":            "equipment",
		"upload.match_id_only":           "match-id-only",
		"upload.workers":                 "workers",
		"anonymize.replace_patient_name": "replace-name",
		"anonymize.replace_patient_id":   "replace-id",
		"anonymize.replace_birth_date":   "year-only",
		"anonymize.remove_birth_date":    "remove-birth-date",
		"temp_dir":                       "temp-dir",
	})
	return cmd
}

func listsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Show the archive's instances, projects, sites and equipment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.Lists(cmd.Context(), env)
		},
	}
	cmd.Flags().String("instance", "", "instance whose projects and sites are listed")
	bind(cmd, map[string]string{"upload.instance_id": "instance"})
	return cmd
}

func testConnectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Check the archive credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.TestConnection(cmd.Context(), env)
		},
	}
}

func connectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Manage saved connection profiles",
	}

	add := &cobra.Command{
		Use:   "add <server> <username>",
		Short: "Save a connection; the password is prompted for",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(os.Stderr, "Password: ")
			pw, err := readPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("could not read password: %w", err)
			}
			p, err := profiles.NewProfile(args[0], args[1], string(pw))
			if err != nil {
				return err
			}
			if err := env.Profiles().Append(p); err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "Saved %s\n", p.Display())
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved connections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, err := env.Profiles().Load()
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Fprintln(env.Out, "No connections setup")
			}
			for i, p := range all {
				fmt.Fprintf(env.Out, "%3d  %s\n", i, p.Display())
			}
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <index>",
		Short: "Delete a saved connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			p, err := env.Profiles().Remove(i)
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "Removed %s\n", p.Display())
			return nil
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent upload outcomes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.History(cmd.Context(), env, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of entries")
	return cmd
}

func mockArchiveCmd() *cobra.Command {
	var (
		addr, dir, user, password string
	)
	cmd := &cobra.Command{
		Use:   "mock-archive",
		Short: "Serve a local imitation of the archive API for testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := mockarchive.Options{Username: user, Dir: dir, Log: env.Log.Logger}
			if password != "" {
				opts.PasswordHash = identity.PasswordHash(password)
			}
			e := mockarchive.New(opts).Echo()

			errCh := make(chan error, 1)
			go func() {
				env.Log.Info().Str("addr", addr).Msg("Mock archive listening")
				errCh <- e.Start(addr)
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return e.Shutdown(ctx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&dir, "dir", "", "store received files here instead of memory")
	cmd.Flags().StringVar(&user, "user", "", "required username")
	cmd.Flags().StringVar(&password, "password", "", "required password")
	return cmd
}

// cancelOnSignal cancels the run on the first signal. The batch in flight is
// aborted and its files are marked failed.
func cancelOnSignal(sig <-chan os.Signal, cancel context.CancelFunc, warn func(string)) {
	<-sig
	warn("Interrupted, cancelling upload")
	cancel()
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go cancelOnSignal(sigChan, cancel, func(msg string) {
		if env != nil {
			env.Log.Warn().Msg(msg)
		}
	})

	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if env != nil {
		if cerr := env.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
