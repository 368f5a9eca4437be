package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"translator-agent/internal/content"
	"translator-agent/internal/domain"
	"translator-agent/internal/engine"
	"translator-agent/internal/pipeline"
	"translator-agent/internal/quota"
	"translator-agent/pkg/utils"
)

const uploadDir = "uploads"

type TranslateStats struct {
	TotalTranslations int64 `json:"totalTranslations"`
	CharactersUsed    int64 `json:"charactersUsed"`
	RemainingQuota    int   `json:"remainingQuota"`
	MonthlyUsage      int64 `json:"monthlyUsage"`
}

type UploadResult struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"size"`
}

type TranslateService struct {
	pipe         *pipeline.Orchestrator
	engine       *engine.Engine
	translations domain.TranslationRepository
	ledger       *quota.Ledger
	fileRoot     string
	maxUpload    int64
	log          *zap.Logger
}

func NewTranslateService(
	pipe *pipeline.Orchestrator,
	eng *engine.Engine,
	translations domain.TranslationRepository,
	ledger *quota.Ledger,
	fileRoot string,
	maxUploadBytes int64,
	l *zap.Logger,
) *TranslateService {
	if l == nil {
		l = zap.NewNop()
	}
	return &TranslateService{
		pipe: pipe, engine: eng, translations: translations, ledger: ledger,
		fileRoot: fileRoot, maxUpload: maxUploadBytes, log: l.Named("translate"),
	}
}

func (s *TranslateService) Translate(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
	return s.pipe.Run(ctx, req)
}

func (s *TranslateService) Batch(ctx context.Context, userID string, items []pipeline.BatchItem) (*pipeline.BatchOutcome, error) {
	return s.pipe.RunBatch(ctx, userID, items)
}

func (s *TranslateService) Detect(ctx context.Context, text string) string {
	return s.engine.DetectLanguage(ctx, text)
}

func (s *TranslateService) Stats(ctx context.Context, userID string) (*TranslateStats, error) {
	total, err := s.translations.CountCompleted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count translations: %w", err)
	}
	snap, err := s.ledger.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &TranslateStats{
		TotalTranslations: total,
		CharactersUsed:    snap.CharactersUsed,
		RemainingQuota:    snap.Remaining,
		MonthlyUsage:      snap.TranslationsCount,
	}, nil
}

// SaveUpload 落盘到 fileRoot/uploads，返回相对路径供 kind=file 使用
func (s *TranslateService) SaveUpload(name string, size int64, r io.Reader) (*UploadResult, error) {
	name = filepath.Base(name)
	if !content.AllowedExtension(name) {
		return nil, ErrUploadType
	}
	if size == 0 {
		return nil, ErrUploadEmpty
	}
	if s.maxUpload > 0 && size > s.maxUpload {
		return nil, ErrUploadTooLarge
	}

	dir := filepath.Join(s.fileRoot, uploadDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	rel := filepath.Join(uploadDir, utils.NewID()+strings.ToLower(filepath.Ext(name)))
	dst := filepath.Join(s.fileRoot, rel)
	f, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}
	defer f.Close()

	src := r
	if s.maxUpload > 0 {
		src = io.LimitReader(r, s.maxUpload+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		_ = os.Remove(dst)
		return nil, fmt.Errorf("write upload: %w", err)
	}
	if s.maxUpload > 0 && n > s.maxUpload {
		_ = os.Remove(dst)
		return nil, ErrUploadTooLarge
	}
	s.log.Info("file uploaded", zap.String("path", rel), zap.Int64("size", n))
	return &UploadResult{Path: filepath.ToSlash(rel), Name: name, SizeBytes: n}, nil
}
