package main

import (
	"context"
	"fmt"
	"log"

	"yuzu/interview/internal/config"
	"yuzu/interview/internal/persistence"
)

// openStore builds the configured backend. The returned reader is nil when
// the backend cannot read records back.
func openStore(ctx context.Context, cfg config.Config) (persistence.Store, persistence.RecordReader, func(), error) {
	noop := func() {}
	switch cfg.Storage.Backend {
	case "", "memory":
		m := persistence.NewMemoryStore()
		return m, m, noop, nil
	case "badger":
		b, err := persistence.NewBadgerStore(persistence.BadgerOptions{Dir: cfg.Storage.BadgerDir})
		if err != nil {
			return nil, nil, nil, err
		}
		return b, b, closer("badger", b.Close), nil
	case "postgres":
		p, err := persistence.OpenPostgres(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return p, p, closer("postgres", p.Close), nil
	case "s3":
		a := s3Archive(cfg)
		return a, a, noop, nil
	case "tee":
		// Local badger for checkpoints and reads, S3 as the archive.
		b, err := persistence.NewBadgerStore(persistence.BadgerOptions{Dir: cfg.Storage.BadgerDir})
		if err != nil {
			return nil, nil, nil, err
		}
		t := persistence.Tee{b, s3Archive(cfg)}
		return t, t, closer("badger", b.Close), nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func s3Archive(cfg config.Config) *persistence.S3Archive {
	client := persistence.NewS3Client(persistence.S3Config{
		Bucket:          cfg.S3.Bucket,
		Prefix:          cfg.S3.Prefix,
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKey,
		SecretAccessKey: cfg.S3.SecretKey,
		UsePathStyle:    cfg.S3.PathStyle,
	})
	return persistence.NewS3Archive(client, cfg.S3.Bucket, cfg.S3.Prefix)
}

func closer(name string, fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			log.Printf("[persist] close %s: %v", name, err)
		}
	}
}
