package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/iqc-intake-api/internal/dto"
	"github.com/noah-isme/iqc-intake-api/internal/models"
	appErrors "github.com/noah-isme/iqc-intake-api/pkg/errors"
	"github.com/noah-isme/iqc-intake-api/pkg/export"
)

// Report formats accepted by Compile.
const (
	ReportFormatPDF  = "pdf"
	ReportFormatCSV  = "csv"
	ReportFormatXLSX = "xlsx"
)

var reportHeaders = []string{"Name", "Date", "Venue", "Organizer", "Type"}

type progressSource interface {
	DepartmentProgress(ctx context.Context, identity models.Identity, dept models.Department) (models.DepartmentProgress, error)
}

// ReportService renders department snapshots into downloadable files.
type ReportService struct {
	progress    progressSource
	renderers   map[string]export.Renderer
	audit       auditWriter
	logger      *zap.Logger
	institution string
	now         func() time.Time
}

// NewReportService constructs the compiler with the PDF, CSV and XLSX renderers.
func NewReportService(progress progressSource, audit auditWriter, logger *zap.Logger, institution string) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		progress: progress,
		renderers: map[string]export.Renderer{
			ReportFormatPDF:  export.NewPDFExporter(),
			ReportFormatCSV:  export.NewCSVExporter(),
			ReportFormatXLSX: export.NewXLSXExporter(),
		},
		audit:       audit,
		logger:      logger,
		institution: institution,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Compile renders the department's validated events in format. An empty format means pdf.
func (s *ReportService) Compile(ctx context.Context, identity models.Identity, department, format string) (*dto.ReportArtifact, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ReportFormatPDF
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format %q", format))
	}
	dept, ok := models.ParseDepartment(department)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown department")
	}

	progress, err := s.progress.DepartmentProgress(ctx, identity, dept)
	if err != nil {
		return nil, err
	}

	body, err := renderer.Render(s.buildReport(progress))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	if s.audit != nil {
		userID := identity.UserID
		resourceID := string(dept)
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &userID,
			Action:     models.AuditActionReportDownload,
			Resource:   "report",
			ResourceID: &resourceID,
			NewValues:  []byte(fmt.Sprintf(`{"format":%q}`, format)),
		}); err != nil {
			s.logger.Warn("failed to record audit log", zap.Error(err))
		}
	}

	return &dto.ReportArtifact{
		Filename:    fmt.Sprintf("%s_IQC_Report.%s", dept, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

func (s *ReportService) buildReport(progress models.DepartmentProgress) export.Report {
	subtitle := fmt.Sprintf("Department: %s", progress.Department)
	if s.institution != "" {
		subtitle = s.institution + " | " + subtitle
	}
	report := export.Report{
		Title:    "IQC Event Report",
		Subtitle: subtitle,
		Summary: []export.Field{
			{Label: "Generated", Value: s.now().Format("2006-01-02 15:04 MST")},
			{Label: "Target", Value: strconv.Itoa(progress.Target)},
			{Label: "Validated", Value: strconv.Itoa(progress.Validated)},
			{Label: "Progress", Value: strconv.FormatFloat(progress.Percentage, 'f', 1, 64) + "%"},
		},
	}

	for _, category := range models.EventCategories {
		events := progress.EventsByCategory[category]
		if len(events) == 0 {
			continue
		}
		section := export.Section{
			Heading: string(category),
			Data:    export.Dataset{Headers: reportHeaders},
		}
		for _, event := range events {
			section.Data.Rows = append(section.Data.Rows, map[string]string{
				"Name":      event.Name,
				"Date":      event.Date.String(),
				"Venue":     event.Venue,
				"Organizer": event.Organizer,
				"Type":      string(event.DocumentType),
			})
		}
		report.Sections = append(report.Sections, section)
	}
	if len(report.Sections) == 0 {
		report.Sections = []export.Section{{Heading: "No validated events", Data: export.Dataset{Headers: reportHeaders}}}
	}
	return report
}
