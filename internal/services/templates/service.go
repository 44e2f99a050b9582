package templates

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
)

// Service turns each fingerprint group's rules into a persisted render
// template, deduplicating structurally equivalent groups so five
// near-identical product layouts share one template instead of five.
type Service struct {
	llm           interfaces.LLMService
	stagedStorage interfaces.StagedItemStorage
	templateStore interfaces.TemplateStorage
	rulesetStore  interfaces.RuleSetStorage
	registry      interfaces.JobRegistry
	logger        arbor.ILogger
}

// NewService creates the template generation service
func NewService(llm interfaces.LLMService, stagedStorage interfaces.StagedItemStorage, templateStore interfaces.TemplateStorage, rulesetStore interfaces.RuleSetStorage, registry interfaces.JobRegistry, logger arbor.ILogger) *Service {
	return &Service{
		llm:           llm,
		stagedStorage: stagedStorage,
		templateStore: templateStore,
		rulesetStore:  rulesetStore,
		registry:      registry,
		logger:        logger,
	}
}

// Generate produces templates for every group in the job's ruleset, in
// stable fingerprint order with cancellation checked between groups.
// Dedup comparison failures propagate: silently skipping the comparison
// would multiply templates and corrupt the site model.
func (s *Service) Generate(ctx context.Context, jobID string) error {
	ruleset, err := s.rulesetStore.GetRuleSet(jobID)
	if err != nil {
		return fmt.Errorf("failed to load ruleset: %w", err)
	}

	fingerprints := make([]string, 0, len(ruleset.Groups))
	for fp := range ruleset.Groups {
		fingerprints = append(fingerprints, fp)
	}
	sort.Strings(fingerprints)

	// generated tracks this run's templates by page type for dedup
	type generated struct {
		filename string
		sample   string
	}
	byPageType := map[string][]generated{}

	for _, fingerprint := range fingerprints {
		if s.registry.IsCancelled(jobID) {
			return interfaces.ErrCancelled
		}

		rule := ruleset.Groups[fingerprint]
		sample, err := s.sampleMarkup(jobID, rule)
		if err != nil {
			return err
		}

		// Pairwise comparison against every earlier template of the
		// same page type; first "can share" wins
		shared := ""
		for _, prior := range byPageType[rule.PageType] {
			comparison, err := s.llm.CompareStructures(ctx, sample, prior.sample)
			if err != nil {
				return fmt.Errorf("structure comparison failed for group %s: %w", fingerprint[:8], err)
			}
			if comparison.CanShare {
				shared = prior.filename
				s.logger.Info().
					Str("job_id", jobID).
					Str("fingerprint", fingerprint[:8]).
					Str("template", prior.filename).
					Str("reason", comparison.Reason).
					Msg("Group shares an existing template")
				break
			}
		}

		if shared != "" {
			rule.TemplateID = shared
			rule.Duplicate = true
			if err := s.rulesetStore.SaveRuleSet(ruleset); err != nil {
				return fmt.Errorf("failed to persist ruleset: %w", err)
			}
			continue
		}

		filename := TemplateFilename(rule.PageType, fingerprint)
		code, err := s.llm.GenerateTemplate(ctx, sample, rule.Selectors, rule.PageType)
		if err != nil {
			return fmt.Errorf("template generation failed for group %s: %w", fingerprint[:8], err)
		}

		tmpl := &models.Template{
			Filename: filename,
			PageType: rule.PageType,
			Code:     code,
			Regions:  deriveRegions(rule.Selectors),
			JobID:    jobID,
		}
		if err := s.templateStore.SaveTemplate(tmpl); err != nil {
			return fmt.Errorf("failed to persist template: %w", err)
		}

		rule.TemplateID = filename
		rule.Duplicate = false
		if err := s.rulesetStore.SaveRuleSet(ruleset); err != nil {
			return fmt.Errorf("failed to persist ruleset: %w", err)
		}

		byPageType[rule.PageType] = append(byPageType[rule.PageType], generated{
			filename: filename,
			sample:   sample,
		})

		s.logger.Info().
			Str("job_id", jobID).
			Str("template", filename).
			Int("regions", len(tmpl.Regions)).
			Msg("Generated template")
	}

	return nil
}

// sampleMarkup returns the analysis markup of the group's sample page
func (s *Service) sampleMarkup(jobID string, rule *models.GroupRule) (string, error) {
	item, err := s.stagedStorage.GetItem(jobID, rule.SampleURL)
	if err != nil {
		return "", fmt.Errorf("failed to load sample page %s: %w", rule.SampleURL, err)
	}
	return item.AnalysisHTML, nil
}

// TemplateFilename derives the logical filename identifying a template
func TemplateFilename(pageType, fingerprint string) string {
	fp := fingerprint
	if len(fp) > 8 {
		fp = fp[:8]
	}
	return fmt.Sprintf("%s-%s.html", pageType, fp)
}
