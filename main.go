package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/janjanpower/77law-sub002/auth"
	"github.com/janjanpower/77law-sub002/config"
	"github.com/janjanpower/77law-sub002/model"
	"github.com/janjanpower/77law-sub002/pkg/logger"
	"github.com/janjanpower/77law-sub002/service"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "caseupload",
		Usage:   "Batch-upload case records to the case tracking backend",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.yaml", Usage: "Path to config file"},
		},
		Commands: []*cli.Command{
			uploadCmd(),
			normalizeCmd(),
		},
	}
}

// uploadCmd runs the full pipeline against the configured backend.
func uploadCmd() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Normalize and upload case records from a JSON file",
		ArgsUsage: "<records.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "token", Usage: "Bearer token (overrides config and minted token)"},
			&cli.IntFlag{Name: "batch-size", Usage: "Records per batch (default from config)"},
			&cli.IntFlag{Name: "max-retries", Usage: "Retries per batch (default from config)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one records file, got %d arguments", c.NArg())
			}

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger.Init(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

			records, err := readRecords(c.Args().First())
			if err != nil {
				return err
			}

			uploadCtx, err := buildUploadContext(cfg, c.String("token"))
			if err != nil {
				return err
			}

			batchSize := cfg.Upload.BatchSize
			if c.IsSet("batch-size") {
				batchSize = c.Int("batch-size")
			}
			maxRetries := cfg.Upload.MaxRetries
			if c.IsSet("max-retries") {
				maxRetries = c.Int("max-retries")
			}

			uploader := service.NewUploader(service.NewCaseAPIClient(&cfg.API))

			done := make(chan service.Summary, 1)
			var success bool
			err = uploader.StartUpload(records, uploadCtx,
				func(percent int, message string) {
					fmt.Printf("[%3d%%] %s\n", percent, message)
				},
				func(ok bool, summary service.Summary) {
					success = ok
					done <- summary
				},
				service.WithBatchSize(batchSize),
				service.WithMaxRetries(maxRetries),
			)
			if err != nil {
				return err
			}

			summary := <-done
			if !success {
				return fmt.Errorf("upload failed: %s", summary.Message)
			}

			fmt.Printf("total: %d, uploaded: %d, failed: %d\n",
				summary.Total, summary.Uploaded, summary.Failed)
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d records failed to upload", summary.Failed, summary.Total)
			}
			return nil
		},
	}
}

// normalizeCmd is a dry run: it prints the wire records without sending.
func normalizeCmd() *cli.Command {
	return &cli.Command{
		Name:      "normalize",
		Usage:     "Print the normalized wire form of case records without uploading",
		ArgsUsage: "<records.json>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one records file, got %d arguments", c.NArg())
			}

			records, err := readRecords(c.Args().First())
			if err != nil {
				return err
			}

			dropped := 0
			enc := json.NewEncoder(os.Stdout)
			enc.SetEscapeHTML(false)
			for _, rec := range records {
				normalized := model.Normalize(rec)
				if normalized.CaseID() == "" {
					dropped++
					continue
				}
				if err := enc.Encode(normalized); err != nil {
					return fmt.Errorf("failed to encode record: %w", err)
				}
			}
			if dropped > 0 {
				fmt.Fprintf(os.Stderr, "dropped %d records without case_id\n", dropped)
			}
			return nil
		},
	}
}

// readRecords decodes records from a JSON array of objects.
func readRecords(path string) ([]model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse records file: %w", err)
	}

	records := make([]model.Record, 0, len(raw))
	for _, m := range raw {
		records = append(records, model.MapRecord(m))
	}
	return records, nil
}

// buildUploadContext assembles the run identity from config. The bearer
// token comes from the --token flag, then the configured static token, then
// a minted one when a shared JWT secret is configured.
func buildUploadContext(cfg *config.Config, flagToken string) (model.UploadContext, error) {
	uploadCtx := model.UploadContext{
		"client_id":    cfg.Client.ClientID,
		"username":     cfg.Client.Username,
		"display_name": cfg.Client.DisplayName,
	}

	switch {
	case flagToken != "":
		uploadCtx["token"] = flagToken
	case cfg.API.Token != "":
		// The client already carries the configured token.
	case cfg.Auth.JWTSecret != "":
		token, _, err := auth.GenerateToken(cfg.Client.Username, cfg.Client.ClientID, &cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}
		uploadCtx["token"] = token
	}

	return uploadCtx, nil
}
