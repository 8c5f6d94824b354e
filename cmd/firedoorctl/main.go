// firedoorctl extracts structured fire-door attribute data from folders
// of scanned specification sheets and exports them as JSON reports and
// an Excel workbook.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qianyu2019/firedoor-extractor/config"
	"github.com/qianyu2019/firedoor-extractor/internal/export"
	"github.com/qianyu2019/firedoor-extractor/internal/llm"
	"github.com/qianyu2019/firedoor-extractor/internal/ocr"
	"github.com/qianyu2019/firedoor-extractor/internal/pipeline"
	"github.com/qianyu2019/firedoor-extractor/internal/raster"
	"github.com/qianyu2019/firedoor-extractor/pkg/httpclient"
	"github.com/qianyu2019/firedoor-extractor/pkg/logger"
)

func main() {
	var (
		configPath string
		inputDir   string
		excelPath  string
		workers    int
	)

	rootCmd := &cobra.Command{
		Use:   "firedoorctl",
		Short: "Extract structured data from scanned fire-door sheets",
		Long: "firedoorctl rasterizes the spec-table region of each door sheet, sends it\n" +
			"through a layout OCR service and an LLM extraction prompt, and exports the\n" +
			"structured records per batch as JSON and as one Excel sheet per folder.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if excelPath != "" {
				cfg.ExcelPath = excelPath
			}
			if workers > 0 {
				cfg.Workers = workers
			}

			log, err := logger.NewLogger(
				logger.WithLevel(cfg.LogLevel),
				logger.WithFilePath(cfg.LogFile),
			)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, inputDir, log)
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.Flags().StringVarP(&inputDir, "input", "i", "", "root folder containing per-project subfolders with a pdf/ directory")
	rootCmd.Flags().StringVar(&excelPath, "excel", "", "output workbook path (overrides config)")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (overrides config)")
	rootCmd.MarkFlagRequired("input")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run processes every <input>/<name>/pdf directory as one batch.
func run(ctx context.Context, cfg *config.Config, inputDir string, log logger.Logger) error {
	dirEntries, err := os.ReadDir(inputDir)
	if err != nil {
		return fmt.Errorf("failed to read input folder %s: %w", inputDir, err)
	}

	// Each worker builds its own HTTP client so sessions and retry
	// state stay isolated.
	factory := func() pipeline.WorkerClients {
		hc := httpclient.New(
			httpclient.WithMaxRetries(cfg.RetryMax),
			httpclient.WithBaseDelay(cfg.RetryBaseDelay()),
			httpclient.WithLogger(log.Named("http")),
		)
		return pipeline.WorkerClients{
			OCR: ocr.NewClient(cfg.OCRBaseURL, hc),
			Extract: llm.NewClient(llm.Config{
				URL:    cfg.ChatURL,
				Model:  cfg.ChatModel,
				APIKey: cfg.ChatAPIKey,
			}, hc),
			Close: hc.Close,
		}
	}

	excel := export.NewExcelExporter(log.Named("export"))
	batches := 0

	for _, e := range dirEntries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		pdfDir := filepath.Join(inputDir, name, "pdf")
		if info, err := os.Stat(pdfDir); err != nil || !info.IsDir() {
			continue
		}

		debugDir := ""
		if cfg.DebugImageDir != "" {
			debugDir = filepath.Join(cfg.DebugImageDir, name)
		}
		rasterizer, err := raster.New(cfg.DPI, cfg.ROI, debugDir, log.Named("raster"))
		if err != nil {
			return err
		}

		opts := []pipeline.Option{
			pipeline.WithMarkers(cfg.Markers),
			pipeline.WithLogger(log.Named("pipeline")),
		}
		if cfg.Workers > 0 {
			opts = append(opts, pipeline.WithWorkers(cfg.Workers))
		}
		orch, err := pipeline.NewOrchestrator(rasterizer, factory, opts...)
		if err != nil {
			return err
		}

		log.Info("processing folder", logger.String("folder", pdfDir))
		led, err := orch.Run(ctx, pdfDir)
		if err != nil {
			return err
		}

		records := export.CollectRecords(led.Snapshot(), log)
		jsonPath := filepath.Join(cfg.CacheJSONDir, name+"_extracted_fhm_data.json")
		if err := export.WriteJSON(jsonPath, records); err != nil {
			return err
		}
		log.Info("json report saved", logger.String("path", jsonPath))

		if err := excel.AddSheet(name, records); err != nil {
			return err
		}
		batches++
	}

	if batches == 0 {
		log.Warn("no batch folders found", logger.String("input", inputDir))
		return nil
	}
	if err := excel.Save(cfg.ExcelPath); err != nil {
		return err
	}
	log.Info("workbook saved", logger.String("path", cfg.ExcelPath), logger.Int("batches", batches))
	return nil
}
