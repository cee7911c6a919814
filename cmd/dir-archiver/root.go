package main

import (
	"errors"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/raoulx24/dir-archiver/internal/config"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	debug      bool

	// overrides
	dirs    []string
	bucket  string
	prefix  string
	region  string
	pattern string
	stamp   string

	newStore storeFactory
}

func newRootCmd(newStore storeFactory) *cobra.Command {
	opts := &rootOptions{newStore: newStore}

	cmd := &cobra.Command{
		Use:   "dir-archiver",
		Short: "Back up directories to S3 with tiered retention",
		Long: `dir-archiver archives a set of directories, uploads them to S3 under a
timestamped prefix and prunes old snapshots with an hourly, daily, weekly,
monthly and yearly retention policy. It can also restore the most
appropriate snapshot.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "config.yaml", "config file")
	f.BoolVar(&opts.debug, "debug", false, "debug logging to the console")
	f.StringSliceVarP(&opts.dirs, "dir", "d", nil, "directory to back up or restore (repeatable, replaces source.dirs)")
	f.StringVarP(&opts.bucket, "bucket", "b", "", "destination bucket")
	f.StringVarP(&opts.prefix, "prefix", "p", "", "key prefix inside the bucket")
	f.StringVar(&opts.region, "region", "", "bucket region (default: instance metadata)")
	f.StringVar(&opts.pattern, "pattern", "", `retention "hourly,daily,weekly,monthly,yearly"`)
	f.StringVar(&opts.stamp, "stamp", "", "restore this snapshot, YYYY-MM-DD-HH-mm-ss")

	cmd.AddCommand(
		newBackupCmd(opts),
		newRestoreCmd(opts),
		newRotateCmd(opts),
		newPlanCmd(opts),
		newDaemonCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load reads the config file, applies command-line overrides and validates
// the result. A missing file is only an error when required.
func (o *rootOptions) load(path string, required bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case !required && errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	default:
		return nil, err
	}

	o.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *rootOptions) applyOverrides(cfg *config.Config) {
	if len(o.dirs) > 0 {
		cfg.Source.Dirs = o.dirs
	}
	if o.bucket != "" {
		cfg.Destination.Bucket = o.bucket
	}
	if o.prefix != "" {
		cfg.Destination.Prefix = o.prefix
	}
	if o.region != "" {
		cfg.Destination.Region = o.region
	}
	if o.pattern != "" {
		cfg.Retention.Pattern = o.pattern
	}
	if o.stamp != "" {
		cfg.Restore.Stamp = o.stamp
	}
	if o.debug {
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "console"
		cfg.Logging.File = ""
	}
}
