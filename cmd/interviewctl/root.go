package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"yuzu/interview/internal/config"
	"yuzu/interview/internal/persistence"
)

type storeFlags struct {
	backend     string
	badgerDir   string
	databaseURL string
}

func newRootCmd() *cobra.Command {
	sf := &storeFlags{}
	root := &cobra.Command{
		Use:           "interviewctl",
		Short:         "Inspect interview records and question banks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&sf.backend, "backend", "", "storage backend: badger, postgres or s3 (default from STORAGE_BACKEND)")
	root.PersistentFlags().StringVar(&sf.badgerDir, "badger-dir", "", "badger directory (default from BADGER_DIR)")
	root.PersistentFlags().StringVar(&sf.databaseURL, "database-url", "", "postgres DSN (default from DATABASE_URL)")

	root.AddCommand(newRecordsCmd(sf), newQuestionsCmd())
	return root
}

// openReader opens the configured store for reading.
func (sf *storeFlags) openReader(ctx context.Context) (persistence.RecordReader, func(), error) {
	cfg := config.Load()
	backend := cfg.Storage.Backend
	if sf.backend != "" {
		backend = sf.backend
	}
	if sf.badgerDir != "" {
		cfg.Storage.BadgerDir = sf.badgerDir
	}
	if sf.databaseURL != "" {
		cfg.Storage.PostgresDSN = sf.databaseURL
	}

	switch backend {
	case "badger", "tee":
		b, err := persistence.NewBadgerStore(persistence.BadgerOptions{Dir: cfg.Storage.BadgerDir})
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	case "postgres":
		p, err := persistence.OpenPostgres(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	case "s3":
		client := persistence.NewS3Client(persistence.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKey,
			SecretAccessKey: cfg.S3.SecretKey,
			UsePathStyle:    cfg.S3.PathStyle,
		})
		return persistence.NewS3Archive(client, cfg.S3.Bucket, cfg.S3.Prefix), func() {}, nil
	case "memory", "":
		return nil, nil, fmt.Errorf("backend %q keeps nothing between runs; use --backend", backend)
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}
