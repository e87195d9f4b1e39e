package main

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/charimport/internal/core"
	"github.com/JonMunkholm/charimport/internal/ingest"
)

// previewStore backs -preview runs, which never touch a database.
type previewStore struct{}

var errPreviewOnly = errors.New("store unavailable in preview mode")

func (previewStore) SaveCharacters(context.Context, string, []ingest.Record) error {
	return errPreviewOnly
}
func (previewStore) RecordImport(context.Context, core.ImportRun) error { return errPreviewOnly }
func (previewStore) GetImport(context.Context, string) (core.ImportRun, error) {
	return core.ImportRun{}, core.ErrNotFound
}
func (previewStore) ListImports(context.Context, int, int) ([]core.ImportRun, error) {
	return nil, nil
}
func (previewStore) ListCharacters(context.Context, core.CharacterFilter) ([]core.Character, error) {
	return nil, nil
}
func (previewStore) PurgeImports(context.Context, time.Time) (int64, error) { return 0, nil }
func (previewStore) Ping(context.Context) error                             { return nil }
func (previewStore) Close() error                                           { return nil }
