package pipeline

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"compsheet/internal"
	"compsheet/internal/config"
	"compsheet/internal/storage"
)

type ProcessingService struct {
	db     *storage.DB
	cfg    config.Config
	logger *zap.Logger
	now    func() time.Time
}

func NewProcessingService(db *storage.DB, cfg config.Config, logger *zap.Logger) *ProcessingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessingService{db: db, cfg: cfg, logger: logger, now: time.Now}
}

type ImportResult struct {
	UploadID  int64
	MappingID int64
	Mapping   internal.HeaderMapping
}

func (s *ProcessingService) ImportTable(t internal.Table, emailID *int) (ImportResult, error) {
	if err := ValidateTable(t); err != nil {
		return ImportResult{}, err
	}
	if s.cfg.MaxUploadRows > 0 && len(t.Rows) > s.cfg.MaxUploadRows {
		return ImportResult{}, fmt.Errorf("%s: %d rows, limit %d: %w", tableLabel(t), len(t.Rows), s.cfg.MaxUploadRows, ErrTooManyRows)
	}

	uploadID, err := s.db.InsertUpload(t, emailID)
	if err != nil {
		return ImportResult{}, err
	}
	mapping := SuggestMapping(t.Headers)
	mappingID, err := s.db.InsertMapping(uploadID, internal.MappingSuggested, mapping)
	if err != nil {
		return ImportResult{}, err
	}

	s.logger.Info("upload imported",
		zap.Int64("uploadId", uploadID),
		zap.String("source", t.Name),
		zap.Int("rows", len(t.Rows)),
		zap.Int("mapped", mapping.MappedCount()),
		zap.Int("headers", len(t.Headers)),
	)
	return ImportResult{UploadID: uploadID, MappingID: mappingID, Mapping: mapping}, nil
}

func (s *ProcessingService) ApplyMapping(uploadID int64, m internal.HeaderMapping) (int64, error) {
	upload, err := s.db.MustUpload(uploadID)
	if err != nil {
		return 0, err
	}
	if len(m) == 0 {
		return 0, fmt.Errorf("upload %d: %w", uploadID, ErrMappingEmpty)
	}

	known := make(map[string]bool, len(upload.Headers))
	for _, h := range upload.Headers {
		known[h] = true
	}
	for _, e := range m {
		if !known[e.Header] {
			s.logger.Warn("mapping header not in upload", zap.Int64("uploadId", uploadID), zap.String("header", e.Header))
		}
		if e.Field != "" && !e.Field.Valid() {
			s.logger.Warn("unknown field left unmapped", zap.Int64("uploadId", uploadID), zap.String("header", e.Header), zap.String("field", string(e.Field)))
		}
	}

	id, err := s.db.InsertMapping(uploadID, internal.MappingEdited, m)
	if err != nil {
		return 0, err
	}
	s.logger.Info("mapping applied", zap.Int64("uploadId", uploadID), zap.Int64("mappingId", id), zap.Int("mapped", m.MappedCount()))
	return id, nil
}

func (s *ProcessingService) BuildReport(uploadID int64, title string) (internal.Report, error) {
	table, err := s.db.UploadTable(uploadID)
	if err != nil {
		return internal.Report{}, err
	}

	latest, err := s.db.LatestMapping(uploadID)
	if err != nil {
		return internal.Report{}, err
	}
	if latest == nil {
		mapping := SuggestMapping(table.Headers)
		id, err := s.db.InsertMapping(uploadID, internal.MappingSuggested, mapping)
		if err != nil {
			return internal.Report{}, err
		}
		latest = &internal.MappingRow{ID: id, UploadID: uploadID, Origin: internal.MappingSuggested, Mapping: mapping}
	}

	res, err := BuildCompsWithMapping(table, latest.Mapping)
	if err != nil {
		return internal.Report{}, err
	}

	if strings.TrimSpace(title) == "" {
		title = tableLabel(table)
	}
	created := s.now().UTC().Truncate(time.Second)
	report := internal.Report{
		ID:         uuid.NewString(),
		UploadID:   uploadID,
		MappingID:  latest.ID,
		Title:      title,
		ShareToken: strings.ReplaceAll(uuid.NewString(), "-", ""),
		Comps:      res.Comps,
		Stats:      res.Stats,
		Dropped:    res.Dropped,
		CreatedAt:  created,
	}
	if s.cfg.ShareTTLDays > 0 {
		exp := created.AddDate(0, 0, s.cfg.ShareTTLDays)
		report.ExpiresAt = &exp
	}
	if err := s.db.InsertReport(report); err != nil {
		return internal.Report{}, err
	}

	s.logger.Info("report built",
		zap.String("reportId", report.ID),
		zap.Int64("uploadId", uploadID),
		zap.Int64("mappingId", latest.ID),
		zap.String("mappingOrigin", string(latest.Origin)),
		zap.Int("comps", len(report.Comps)),
		zap.Int("dropped", report.Dropped),
	)
	return report, nil
}

// ResolveShare returns the report behind a share token if it has not expired.
func (s *ProcessingService) ResolveShare(token string) (internal.Report, error) {
	report, err := s.db.GetReportByShareToken(strings.TrimSpace(token))
	if err != nil {
		return internal.Report{}, err
	}
	if report == nil {
		return internal.Report{}, ErrShareNotFound
	}
	if report.ExpiresAt != nil && !s.now().Before(*report.ExpiresAt) {
		return internal.Report{}, fmt.Errorf("report %s: %w", report.ID, ErrShareExpired)
	}
	return *report, nil
}

func ShareURL(cfg config.Config, report internal.Report) string {
	return strings.TrimRight(cfg.ShareBaseURL, "/") + "/" + report.ShareToken
}

type ProcessResult struct {
	EmailID int
	Tables  int
	Reports []internal.Report
}

func (s *ProcessingService) ProcessByProviderMessageID(provider, messageID string) (ProcessResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(email)
}

func (s *ProcessingService) ProcessPending(limit int, provider string) (int, int, error) {
	pending, err := s.db.ListEmailsByStatus("fetched", limit)
	if err != nil {
		return 0, 0, err
	}
	processedEmails := 0
	builtReports := 0
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		res, err := s.ProcessEmail(email)
		if err != nil {
			return processedEmails, builtReports, err
		}
		processedEmails++
		builtReports += len(res.Reports)
	}
	return processedEmails, builtReports, nil
}

func (s *ProcessingService) ProcessEmail(email internal.EmailRow) (ProcessResult, error) {
	start := time.Now()
	log := s.logger.With(zap.Int("emailId", email.ID), zap.String("provider", email.Provider))

	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return ProcessResult{}, err
	}
	content, err := ExtractTablesFromEmail(raw)
	if err != nil {
		return ProcessResult{}, err
	}

	detect := DetectCompsMessage(firstNonEmpty(content.Subject, email.Subject), content.Text, content.AttachmentNames)
	if err := s.db.ClearEmailUploads(email.ID); err != nil {
		return ProcessResult{}, err
	}
	emailID := email.ID

	if !detect.IsComps || len(content.Tables) == 0 {
		log.Info("email skipped", zap.Float64("score", detect.Score), zap.Int("tables", len(content.Tables)))
		_ = s.db.UpdateEmailStatus(email.ID, "skipped")
		_ = s.db.InsertRun(uuid.NewString(), &emailID, map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}, map[string]int{"tables": len(content.Tables), "reports": 0})
		return ProcessResult{EmailID: email.ID}, nil
	}

	out := ProcessResult{EmailID: email.ID, Tables: len(content.Tables)}
	failed := 0
	for _, table := range content.Tables {
		imported, err := s.ImportTable(table, &emailID)
		if err != nil {
			failed++
			log.Warn("table rejected", zap.String("table", tableLabel(table)), zap.Error(err))
			continue
		}
		report, err := s.BuildReport(imported.UploadID, firstNonEmpty(email.Subject, content.Subject))
		if err != nil {
			failed++
			log.Warn("report failed", zap.Int64("uploadId", imported.UploadID), zap.Error(err))
			continue
		}
		out.Reports = append(out.Reports, report)
	}

	status := "processed"
	if len(out.Reports) == 0 {
		status = "failed"
	}
	if err := s.db.UpdateEmailStatus(email.ID, status); err != nil {
		return ProcessResult{}, err
	}
	_ = s.db.InsertRun(uuid.NewString(), &emailID, map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}, map[string]int{"tables": out.Tables, "reports": len(out.Reports), "failed": failed})

	log.Info("email processed", zap.String("status", status), zap.Int("reports", len(out.Reports)), zap.Int("failed", failed))
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
