package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"compsheet/internal/config"
	"compsheet/internal/connectors"
	gmailconnector "compsheet/internal/connectors/gmail"
	imapconnector "compsheet/internal/connectors/imap"
	"compsheet/internal/pipeline"
	"compsheet/internal/publish"
	"compsheet/internal/storage"
)

// Service polls an inbox, turns comps e-mails into reports, and exports the
// resulting workbooks.
type Service struct {
	db     *storage.DB
	cfg    config.Config
	logger *zap.Logger

	makeConnector func(ctx context.Context, provider string) (connectors.MailConnector, error)
	publisher     publish.ReportWriter
}

func NewService(db *storage.DB, cfg config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{db: db, cfg: cfg, logger: logger}
	s.makeConnector = s.defaultConnector
	return s
}

// WithPublisher also publishes every exported report.
func (s *Service) WithPublisher(w publish.ReportWriter) *Service {
	s.publisher = w
	return s
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		if err := s.RunCycle(ctx); err != nil {
			s.logger.Error("listener cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

type CycleResult struct {
	Fetched   int
	New       int
	Processed int
	Reports   int
	Exported  int
}

func (s *Service) RunCycle(ctx context.Context) error {
	_, err := s.runCycle(ctx)
	return err
}

func (s *Service) runCycle(ctx context.Context) (CycleResult, error) {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	mailConnector, err := s.makeConnector(ctx, provider)
	if err != nil {
		return CycleResult{}, err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector, s.logger)
	fetchResult, err := fetchService.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return CycleResult{}, err
	}

	processor := pipeline.NewProcessingService(s.db, s.cfg, s.logger)
	processedEmails, reports, err := processor.ProcessPending(s.cfg.MailListenerProcessBatch, provider)
	if err != nil {
		return CycleResult{}, err
	}

	res := CycleResult{Fetched: fetchResult.Fetched, New: fetchResult.New, Processed: processedEmails, Reports: reports}
	if s.cfg.MailListenerAutoExport {
		exported, err := s.exportProcessed(provider)
		if err != nil {
			return res, err
		}
		res.Exported = exported
	}

	s.logger.Info("listener cycle done",
		zap.String("provider", provider),
		zap.Int("fetched", res.Fetched),
		zap.Int("new", res.New),
		zap.Int("processed", res.Processed),
		zap.Int("reports", res.Reports),
		zap.Int("exported", res.Exported),
	)
	return res, nil
}

func (s *Service) exportProcessed(provider string) (int, error) {
	emails, err := s.db.ListEmailsByStatus("processed", 200)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, email := range emails {
		if email.Provider != provider {
			continue
		}
		reports, err := s.db.ListReportsByEmail(email.ID)
		if err != nil {
			return exported, err
		}
		for i, report := range reports {
			filename := fmt.Sprintf("%d_%s_%d.xlsx", email.ID, sanitizeMessageID(email.MessageID), i+1)
			outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
			if err := pipeline.ExportReportToXLSX(report, outputPath); err != nil {
				return exported, err
			}
			if s.publisher != nil {
				if err := s.publisher.Write(report); err != nil {
					return exported, err
				}
			}
			s.logger.Info("report exported",
				zap.String("reportId", report.ID),
				zap.String("path", outputPath),
				zap.String("share", pipeline.ShareURL(s.cfg, report)),
			)
			exported++
		}
		if err := s.db.UpdateEmailStatus(email.ID, "exported"); err != nil {
			return exported, err
		}
	}
	return exported, nil
}

func (s *Service) defaultConnector(ctx context.Context, provider string) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(ctx, s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "@", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
