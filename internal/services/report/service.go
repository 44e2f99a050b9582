package report

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
)

// Service renders a PDF summary of a finished import job: pages
// staged, fingerprint groups with their validation verdicts, templates
// produced and anything that failed along the way.
type Service struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewService creates the report generator
func NewService(storage interfaces.StorageManager, logger arbor.ILogger) *Service {
	return &Service{storage: storage, logger: logger}
}

// Generate builds the PDF report for a job
func (s *Service) Generate(jobID string) ([]byte, error) {
	job, err := s.storage.JobStorage().GetJob(jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	items, err := s.storage.StagedItemStorage().ListByJob(jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load staged items: %w", err)
	}

	// A job cancelled before rule generation has no ruleset; the report
	// still renders with what exists
	ruleset, _ := s.storage.RuleSetStorage().GetRuleSet(jobID)
	templates, err := s.storage.TemplateStorage().ListTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(12, 12, 12)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()

	s.renderHeader(pdf, job)
	s.renderSummary(pdf, job, items, ruleset, templates)
	if ruleset != nil {
		s.renderGroups(pdf, ruleset)
	}
	s.renderTemplates(pdf, templates, jobID)
	s.renderFailures(pdf, job, ruleset)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}

	s.logger.Debug().Str("job_id", jobID).Int("bytes", buf.Len()).Msg("Generated import report")
	return buf.Bytes(), nil
}

func (s *Service) renderHeader(pdf *fpdf.Fpdf, job *models.ImportJob) {
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Site Import Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, job.Origin, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Job %s - %s", job.ID, time.Now().Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func (s *Service) renderSummary(pdf *fpdf.Fpdf, job *models.ImportJob, items []*models.StagedItem, ruleset *models.RuleSet, templates []*models.Template) {
	s.sectionTitle(pdf, "Summary")

	transformed := 0
	for _, item := range items {
		if item.Status == models.ItemStatusTransformed {
			transformed++
		}
	}
	groups := 0
	if ruleset != nil {
		groups = len(ruleset.Groups)
	}

	rows := [][2]string{
		{"Status", string(job.Status)},
		{"Strategy", string(job.Strategy)},
		{"Pages staged", fmt.Sprintf("%d", len(items))},
		{"Pages transformed", fmt.Sprintf("%d", transformed)},
		{"Structure groups", fmt.Sprintf("%d", groups)},
		{"Templates", fmt.Sprintf("%d", len(templates))},
	}
	if job.StartedAt != nil && job.CompletedAt != nil {
		rows = append(rows, [2]string{"Duration", job.CompletedAt.Sub(*job.StartedAt).Round(time.Second).String()})
	}

	pdf.SetFont("Arial", "", 9)
	for _, row := range rows {
		pdf.CellFormat(45, 6, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, row[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func (s *Service) renderGroups(pdf *fpdf.Fpdf, ruleset *models.RuleSet) {
	s.sectionTitle(pdf, "Structure Groups")

	fingerprints := make([]string, 0, len(ruleset.Groups))
	for fp := range ruleset.Groups {
		fingerprints = append(fingerprints, fp)
	}
	sort.Strings(fingerprints)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(28, 6, "Fingerprint", "B", 0, "L", false, 0, "")
	pdf.CellFormat(28, 6, "Page type", "B", 0, "L", false, 0, "")
	pdf.CellFormat(20, 6, "Members", "B", 0, "R", false, 0, "")
	pdf.CellFormat(20, 6, "Fields", "B", 0, "R", false, 0, "")
	pdf.CellFormat(0, 6, "Validation", "B", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, fp := range fingerprints {
		rule := ruleset.Groups[fp]
		pdf.CellFormat(28, 6, fp[:8], "", 0, "L", false, 0, "")
		pdf.CellFormat(28, 6, rule.PageType, "", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", rule.MemberCount), "", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", len(rule.Selectors)), "", 0, "R", false, 0, "")
		pdf.CellFormat(0, 6, validationSummary(rule), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func (s *Service) renderTemplates(pdf *fpdf.Fpdf, templates []*models.Template, jobID string) {
	s.sectionTitle(pdf, "Templates")

	pdf.SetFont("Arial", "", 9)
	count := 0
	for _, tmpl := range templates {
		if tmpl.JobID != jobID {
			continue
		}
		count++
		pdf.CellFormat(70, 6, tmpl.Filename, "", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, tmpl.PageType, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, fmt.Sprintf("%d regions", len(tmpl.Regions)), "", 1, "L", false, 0, "")
	}
	if count == 0 {
		pdf.CellFormat(0, 6, "No templates generated", "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func (s *Service) renderFailures(pdf *fpdf.Fpdf, job *models.ImportJob, ruleset *models.RuleSet) {
	s.sectionTitle(pdf, "Issues")

	pdf.SetFont("Arial", "", 9)
	issues := 0

	if job.Error != "" {
		pdf.MultiCell(0, 6, "Job error: "+job.Error, "", "L", false)
		issues++
	}

	if ruleset != nil {
		fingerprints := make([]string, 0, len(ruleset.Groups))
		for fp := range ruleset.Groups {
			fingerprints = append(fingerprints, fp)
		}
		sort.Strings(fingerprints)

		for _, fp := range fingerprints {
			rule := ruleset.Groups[fp]
			fields := make([]string, 0, len(rule.Validation))
			for field := range rule.Validation {
				fields = append(fields, field)
			}
			sort.Strings(fields)

			for _, field := range fields {
				v := rule.Validation[field]
				switch {
				case v.IsInvalid:
					pdf.MultiCell(0, 6, fmt.Sprintf("%s/%s: selector matched nothing", fp[:8], field), "", "L", false)
					issues++
				case v.IsBrittle:
					pdf.MultiCell(0, 6, fmt.Sprintf("%s/%s: brittle selector (%.0f%% of sampled pages)", fp[:8], field, v.SuccessRate*100), "", "L", false)
					issues++
				case v.IsLowDensity:
					pdf.MultiCell(0, 6, fmt.Sprintf("%s/%s: low content density for a prose field", fp[:8], field), "", "L", false)
					issues++
				}
			}
		}
	}

	if issues == 0 {
		pdf.CellFormat(0, 6, "None", "", 1, "L", false, 0, "")
	}
}

func (s *Service) sectionTitle(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
}

func validationSummary(rule *models.GroupRule) string {
	invalid, brittle, lowDensity := 0, 0, 0
	for _, v := range rule.Validation {
		if v.IsInvalid {
			invalid++
		} else if v.IsBrittle {
			brittle++
		}
		if v.IsLowDensity {
			lowDensity++
		}
	}
	if invalid == 0 && brittle == 0 && lowDensity == 0 {
		if rule.Duplicate {
			return "clean (shares template)"
		}
		return "clean"
	}
	return fmt.Sprintf("%d invalid, %d brittle, %d low-density", invalid, brittle, lowDensity)
}
