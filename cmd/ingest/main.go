// Command ingest loads the on-disk policy corpus into the Vector Store and
// BM25 Index (spec §4.4: Ingestion). It runs out-of-band, at deploy time or
// on demand, never inside the request path.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"dev.helix.onboarding/internal/bm25"
	"dev.helix.onboarding/internal/config"
	"dev.helix.onboarding/internal/embedding"
	"dev.helix.onboarding/internal/ingestion"
	"dev.helix.onboarding/internal/vectorstore"
)

var (
	configPath = flag.String("config", "", "path to YAML config file")
	reset      = flag.Bool("reset", false, "reset the vector store collection before ingesting")
	watch      = flag.Bool("watch", false, "after the initial ingest, re-ingest the directory on any file change")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	ctx := context.Background()

	store, err := vectorstore.New(vectorstore.Config{
		Host:           cfg.VectorStore.Host,
		Port:           atoiOrDefault(cfg.VectorStore.Port, 6334),
		Collection:     "onboarding_chunks",
		ConnectTimeout: cfg.VectorStore.Timeout,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to vector store")
	}
	defer store.Close()

	if err := store.EnsureCollection(ctx); err != nil {
		log.WithError(err).Fatal("failed to ensure vector store collection")
	}

	embedder := embedding.New(embedding.NewHashingProvider(384), cfg.Retrieval.EmbeddingCacheCapacity, log)
	idx := bm25.New()

	pipeline := ingestion.New(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap, store, idx, embedder, log)

	if *reset {
		if err := pipeline.Reset(ctx); err != nil {
			log.WithError(err).Fatal("failed to reset collection")
		}
	}

	runIngest(ctx, pipeline, cfg.Policies.Directory, log)

	if !*watch {
		os.Exit(0)
	}
	watchAndReingest(ctx, pipeline, cfg.Policies.Directory, log)
}

func runIngest(ctx context.Context, pipeline *ingestion.Pipeline, dir string, log *logrus.Logger) {
	result, err := pipeline.IngestDirectory(ctx, dir)
	if err != nil {
		log.WithError(err).Fatal("ingestion failed")
	}

	total := 0
	for filename, count := range result {
		log.WithFields(logrus.Fields{"file": filename, "chunks": count}).Info("ingested file")
		total += count
	}
	fmt.Printf("ingested %d files, %d chunks total\n", len(result), total)
}

// watchAndReingest re-runs the full directory ingest whenever a policy file
// under dir is written, created, renamed or removed. Coarser than a
// per-file incremental update, but the corpus is small enough that a full
// pass stays well under the request-path budget this command never shares.
func watchAndReingest(ctx context.Context, pipeline *ingestion.Pipeline, dir string, log *logrus.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Fatal("failed to start file watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		log.WithError(err).Fatal("failed to watch policy directory")
	}
	log.WithField("dir", dir).Info("watching policy directory for changes")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-quit:
			log.Info("stopping watch")
			return
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("file watcher error")
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.WithField("file", event.Name).Info("policy file changed, re-ingesting")
			runIngest(ctx, pipeline, dir, log)
		}
	}
}

func atoiOrDefault(s string, fallback int) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n <= 0 {
		return fallback
	}
	return n
}
