package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/sales-tracker/internal/backend"
	"github.com/dvloznov/sales-tracker/internal/domain"
	"github.com/dvloznov/sales-tracker/internal/gcsuploader"
	"github.com/dvloznov/sales-tracker/internal/pipeline"
	"github.com/dvloznov/sales-tracker/internal/store"
	"github.com/spf13/cobra"
)

func newIngestCmd(a *app) *cobra.Command {
	var filePath, entity string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a sales spreadsheet from a local path or gs:// URI",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			data, err := readSource(ctx, a, filePath)
			if err != nil {
				return err
			}

			ingestor, err := newIngestor(a)
			if err != nil {
				return err
			}

			a.log.Info().Str("file", filePath).Str("entity", entity).Msg("Starting ingestion")

			name := sourceName(filePath)
			result, err := ingestor.Ingest(ctx, &pipeline.UploadRequest{
				FileName:    name,
				ContentType: contentTypeFor(name),
				Size:        int64(len(data)),
				Data:        data,
				Entity:      entity,
			})
			if result != nil {
				if werr := printJSON(cmd.OutOrStdout(), result); werr != nil {
					return werr
				}
			}
			if err != nil {
				message, hint := pipeline.Describe(err)
				if hint != "" {
					return fmt.Errorf("%s (%s)", message, hint)
				}
				return fmt.Errorf("ingestion failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filePath, "file", "", "Path or gs:// URI of the spreadsheet")
	cmd.Flags().StringVar(&entity, "entity", "", "Business entity the spreadsheet belongs to")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var entity string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent upload batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			filter := store.HistoryFilter{Limit: limit}
			if entity != "" && !strings.EqualFold(entity, "all") {
				e, err := domain.ParseEntity(entity)
				if err != nil {
					return err
				}
				filter.Entity = e
			}

			batches, err := a.b.Store.ListBatches(ctx, filter)
			if err != nil {
				return fmt.Errorf("list batches: %w", err)
			}
			if batches == nil {
				batches = []*domain.UploadBatch{}
			}
			return printJSON(cmd.OutOrStdout(), batches)
		},
	}

	cmd.Flags().StringVar(&entity, "entity", "", "Only show batches of this entity")
	cmd.Flags().IntVar(&limit, "limit", store.MaxHistoryLimit, "Maximum number of batches")
	return cmd
}

func newInspectCmd(a *app) *cobra.Command {
	var batchID string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show one upload batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			batch, err := a.b.Store.GetBatch(ctx, batchID)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("batch %s not found", batchID)
			}
			if err != nil {
				return fmt.Errorf("get batch: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== Upload Batch ===")
			fmt.Fprintf(out, "ID:        %s\n", batch.BatchID)
			fmt.Fprintf(out, "Entity:    %s\n", batch.Entity)
			fmt.Fprintf(out, "File:      %s\n", batch.FileName)
			fmt.Fprintf(out, "Status:    %s\n", batch.Status)
			fmt.Fprintf(out, "Rows:      %d of %d inserted\n", batch.RowsInserted, batch.RowsTotal)
			fmt.Fprintf(out, "Created:   %s\n", batch.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			if batch.FinishedAt != nil {
				fmt.Fprintf(out, "Finished:  %s\n", batch.FinishedAt.Format("2006-01-02 15:04:05 MST"))
			}
			if batch.Checksum != "" {
				fmt.Fprintf(out, "Checksum:  %s\n", batch.Checksum)
			}
			if batch.SourceURI != "" {
				fmt.Fprintf(out, "Archive:   %s\n", batch.SourceURI)
			}
			if batch.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:     %s\n", batch.ErrorMessage)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "Upload batch ID")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}

func newPurgeCmd(a *app) *cobra.Command {
	var batchID string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete the sales rows of a batch, keeping its audit record",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			if _, err := a.b.Store.GetBatch(ctx, batchID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("batch %s not found", batchID)
				}
				return fmt.Errorf("get batch: %w", err)
			}

			deleted, err := a.b.Store.DeleteRowsByBatch(ctx, batchID)
			if err != nil {
				return fmt.Errorf("purge batch %s: %w", batchID, err)
			}

			a.log.Info().Str("batch_id", batchID).Int64("rows_deleted", deleted).Msg("Batch rows purged")
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d rows of batch %s.\n", deleted, batchID)
			return nil
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "Upload batch ID")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}

func newIngestor(a *app) (*pipeline.Ingestor, error) {
	log := a.log
	return backend.NewIngestor(a.cfg, a.b, func(batchID string, inserted, total int) {
		log.Info().Str("batch_id", batchID).Int("rows_inserted", inserted).Int("rows_total", total).Msg("Progress")
	})
}

// readSource loads a local file, or a gs:// object through the archive
// client or a client opened for the object's bucket.
func readSource(ctx context.Context, a *app, source string) ([]byte, error) {
	if !gcsuploader.IsGCSURI(source) {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", source, err)
		}
		return data, nil
	}

	if a.b != nil && a.b.Storage != nil {
		return a.b.Storage.FetchFromGCS(ctx, source)
	}

	bucket, _, err := gcsuploader.ParseURI(source)
	if err != nil {
		return nil, err
	}
	svc, err := gcsuploader.NewGCSStorageService(ctx, bucket)
	if err != nil {
		return nil, err
	}
	defer svc.Close()
	return svc.FetchFromGCS(ctx, source)
}

func sourceName(source string) string {
	if gcsuploader.IsGCSURI(source) {
		return gcsuploader.ExtractFilenameFromGCSURI(source)
	}
	return filepath.Base(source)
}

// contentTypeFor derives the workbook MIME type from the file extension.
func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return pipeline.MIMETypeXLSX
	case ".xlsm":
		return pipeline.MIMETypeXLSM
	case ".xls":
		return pipeline.MIMETypeXLS
	default:
		return "application/octet-stream"
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
