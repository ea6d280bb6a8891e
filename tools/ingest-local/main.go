package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/carloz138/catalogo-magico-mx-sub005/common/logger"
	"github.com/carloz138/catalogo-magico-mx-sub005/dedupe"
	"github.com/carloz138/catalogo-magico-mx-sub005/models"
	"github.com/carloz138/catalogo-magico-mx-sub005/repository"
	"github.com/carloz138/catalogo-magico-mx-sub005/services"
	"github.com/carloz138/catalogo-magico-mx-sub005/storage"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true}

func main() {
	var sheetPath, imagesDir, dbPath, outDir, duplicates, merchant, overridesPath string
	var batchSize int
	var previewOnly, resubmit bool
	flag.StringVar(&sheetPath, "sheet", "", "product sheet (.csv or .xlsx)")
	flag.StringVar(&imagesDir, "images", "", "directory with product photos")
	flag.StringVar(&dbPath, "db", "catalogo.db", "SQLite database file")
	flag.StringVar(&outDir, "out", "uploads", "directory receiving normalized images")
	flag.StringVar(&duplicates, "duplicates", "block", "duplicate SKU policy: block, skip or cancel")
	flag.StringVar(&merchant, "merchant", "local", "merchant ID")
	flag.StringVar(&overridesPath, "overrides", "", "JSON file mapping SKU to image ID or \"default\"")
	flag.IntVar(&batchSize, "batch", 0, "products per write batch")
	flag.BoolVar(&previewOnly, "preview", false, "print the match preview and exit")
	flag.BoolVar(&resubmit, "resubmit", false, "retry failed batches once at the end")
	flag.Parse()

	if sheetPath == "" {
		log.Fatal("-sheet is required")
	}
	policy, err := dedupe.ParsePolicy(duplicates)
	if err != nil {
		log.Fatal(err)
	}
	if err := logger.Initialize("development"); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := readInput(merchant, sheetPath, imagesDir, overridesPath)
	if err != nil {
		log.Fatal(err)
	}

	store, err := repository.OpenSQLite(ctx, dbPath)
	if err != nil {
		log.Fatalf("sqlite: %v", err)
	}
	defer store.Close()

	uploader, err := storage.NewLocalUploader(outDir)
	if err != nil {
		log.Fatalf("uploads dir: %v", err)
	}

	svc := services.NewIngestionService(store, uploader, services.Config{
		BatchSize:      batchSize,
		ResubmitFailed: resubmit,
	}, nil, nil)

	if previewOnly {
		preview, err := svc.Preview(ctx, in)
		if err != nil {
			log.Fatal(err)
		}
		printJSON(preview)
		return
	}

	// Ctrl-C stops the run before its next batch
	report, err := svc.Run(ctx, in, services.RunOptions{
		Duplicates: policy,
		OnProgress: func(p models.IngestionProgress) {
			zap.L().Info("progress", zap.String("batch", p.CurrentLabel), zap.Int("uploaded", p.Uploaded), zap.Int("failed", p.Failed), zap.Int("total", p.Total))
		},
		Cancelled: func() bool { return ctx.Err() != nil },
	})
	if report != nil {
		printJSON(report)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func readInput(merchant, sheetPath, imagesDir, overridesPath string) (services.Input, error) {
	data, err := os.ReadFile(sheetPath)
	if err != nil {
		return services.Input{}, err
	}
	in := services.Input{MerchantID: merchant, SheetName: filepath.Base(sheetPath), SheetData: data}

	if overridesPath != "" {
		raw, err := os.ReadFile(overridesPath)
		if err != nil {
			return services.Input{}, err
		}
		if err := json.Unmarshal(raw, &in.Overrides); err != nil {
			return services.Input{}, fmt.Errorf("overrides %s: %w", overridesPath, err)
		}
	}

	if imagesDir == "" {
		return in, nil
	}
	var paths []string
	err = filepath.WalkDir(imagesDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && imageExts[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return services.Input{}, err
	}
	sort.Strings(paths)
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return services.Input{}, err
		}
		in.Images = append(in.Images, services.ImageFile{FileName: filepath.Base(p), Data: b})
	}
	return in, nil
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
