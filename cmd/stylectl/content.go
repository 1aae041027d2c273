package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dunamismax/pixelstyle/internal/config"
	"github.com/dunamismax/pixelstyle/internal/content"
	"github.com/dunamismax/pixelstyle/internal/pipeline"
	"github.com/dunamismax/pixelstyle/internal/storage"
)

var (
	contentURL     string
	contentTimeout time.Duration
)

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Manage source content",
}

var contentAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Upload a file and index it under a URL",
	Long:  "Upload a file to object storage under a new record id and index it in Postgres so the API can serve it. Connection settings come from the same environment as the API.",
	Args:  cobra.ExactArgs(1),
	RunE:  runContentAdd,
}

func init() {
	contentAddCmd.Flags().StringVar(&contentURL, "url", "", "URL the content is served under, e.g. /photos/cat.png (defaults to /<file name>)")
	contentAddCmd.Flags().DurationVar(&contentTimeout, "timeout", time.Minute, "Overall timeout")
	contentCmd.AddCommand(contentAddCmd)
	rootCmd.AddCommand(contentCmd)
}

func runContentAdd(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), contentTimeout)
	defer cancel()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	url := contentURL
	if url == "" {
		url = filepath.Base(args[0])
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}

	source := map[string]any{
		"filename": filepath.Base(args[0]),
		"size":     len(data),
	}
	contentType := "application/octet-stream"
	if meta, err := pipeline.NewBuilder(pipeline.NewImagingCodec(0)).Inspect(ctx, data); err == nil {
		contentType = meta.ContentType()
		source["width"] = meta.Width
		source["height"] = meta.Height
		source["format"] = meta.Format
	} else {
		logger.Warn("file is not a decodable image", zap.String("file", args[0]), zap.Error(err))
	}
	source["content_type"] = contentType

	client, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		Prefix:   cfg.Storage.Prefix,
		UseSSL:   cfg.Storage.UseSSL,
	})
	if err != nil {
		return err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return err
	}

	index, err := content.NewPostgresIndex(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = index.Close() }()

	record := content.Record{
		ID:        uuid.NewString(),
		URL:       url,
		Type:      content.TypeFile,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if err := record.Validate(); err != nil {
		return err
	}

	if err := client.WriteObject(ctx, record.ID, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return err
	}
	if err := index.Put(ctx, record); err != nil {
		return err
	}
	logger.Info("content indexed", zap.String("url", record.URL), zap.String("id", record.ID))

	return printResult(cmd.OutOrStdout(), record, func(w io.Writer) {
		fmt.Fprintf(w, "indexed %s as %s (%s, %d bytes)\n", record.URL, record.ID, contentType, len(data))
	})
}
