package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
)

// Service generates extraction rules for each fingerprint group of a
// crawled job and validates them empirically against a sample of group
// members. Validation informs, it never blocks: brittle or low-density
// selectors are flagged in the ruleset and the pipeline moves on.
type Service struct {
	llm           interfaces.LLMService
	stagedStorage interfaces.StagedItemStorage
	rulesetStore  interfaces.RuleSetStorage
	registry      interfaces.JobRegistry
	logger        arbor.ILogger
	// validationSample caps the members checked per selector beyond the
	// sample page itself
	validationSample int
}

// NewService creates the rule generation service
func NewService(llm interfaces.LLMService, stagedStorage interfaces.StagedItemStorage, rulesetStore interfaces.RuleSetStorage, registry interfaces.JobRegistry, logger arbor.ILogger, validationSample int) *Service {
	if validationSample <= 0 {
		validationSample = 5
	}
	return &Service{
		llm:              llm,
		stagedStorage:    stagedStorage,
		rulesetStore:     rulesetStore,
		registry:         registry,
		logger:           logger,
		validationSample: validationSample,
	}
}

// Generate builds the job's ruleset, one GroupRule per distinct
// fingerprint, in stable order with cancellation checked between
// groups. The ruleset persists incrementally so a failure partway
// leaves completed groups intact.
func (s *Service) Generate(ctx context.Context, jobID string) (*models.RuleSet, error) {
	groups, err := s.stagedStorage.FingerprintGroups(jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprint groups: %w", err)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("no staged pages to generate rules for")
	}

	fingerprints := make([]string, 0, len(groups))
	for fp := range groups {
		fingerprints = append(fingerprints, fp)
	}
	sort.Strings(fingerprints)

	ruleset := models.NewRuleSet(jobID)

	for _, fingerprint := range fingerprints {
		if s.registry.IsCancelled(jobID) {
			return ruleset, interfaces.ErrCancelled
		}

		rule, err := s.generateGroupRule(ctx, jobID, fingerprint, groups[fingerprint])
		if err != nil {
			// One group's LLM failure never sinks the phase
			s.logger.Warn().
				Err(err).
				Str("job_id", jobID).
				Str("fingerprint", fingerprint).
				Msg("Failed to generate rules for group, skipping")
			continue
		}
		ruleset.Groups[fingerprint] = rule

		if err := s.rulesetStore.SaveRuleSet(ruleset); err != nil {
			return nil, fmt.Errorf("failed to persist ruleset: %w", err)
		}

		s.logger.Info().
			Str("job_id", jobID).
			Str("fingerprint", fingerprint[:8]).
			Str("page_type", rule.PageType).
			Int("fields", len(rule.Selectors)).
			Msg("Generated extraction rules for group")
	}

	if len(ruleset.Groups) == 0 {
		return nil, fmt.Errorf("rule generation produced no usable groups")
	}
	return ruleset, nil
}

// generateGroupRule classifies one group's sample page and validates
// the proposed selectors against up to validationSample other members
func (s *Service) generateGroupRule(ctx context.Context, jobID, fingerprint string, memberCount int) (*models.GroupRule, error) {
	members, err := s.stagedStorage.ListByFingerprint(jobID, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("fingerprint group has no members")
	}

	sampleItem := members[0]
	analysis, err := s.llm.ClassifyStructure(ctx, sampleItem.AnalysisHTML)
	if err != nil {
		return nil, fmt.Errorf("structure classification failed: %w", err)
	}

	rule := &models.GroupRule{
		Fingerprint: fingerprint,
		PageType:    analysis.PageType,
		Selectors:   analysis.Selectors,
		Validation:  make(map[string]*models.FieldValidation),
		SampleURL:   sampleItem.URL,
		MemberCount: memberCount,
		Summary:     analysis.Summary,
	}

	// Validate against the sample plus up to validationSample other
	// members. The sample stays in the set so a selector that only
	// works on the page it was derived from reads as brittle, not dead.
	validationSet := members
	if len(validationSet) > s.validationSample+1 {
		validationSet = validationSet[:s.validationSample+1]
	}
	samples, err := parseSamples(validationSet)
	if err != nil {
		return nil, err
	}

	fieldTypes := map[string]string{}
	for _, field := range analysis.Fields {
		fieldTypes[field.Name] = field.Type
	}

	for name, selector := range rule.Selectors {
		validation := validateSelector(selector, fieldTypes[name], samples)
		rule.Validation[name] = validation

		if validation.IsInvalid && validation.SampleCount > 0 {
			s.logger.Warn().
				Str("job_id", jobID).
				Str("field", name).
				Str("selector", selector).
				Msg("Selector matched no validation samples")
		}
	}

	// Stamp the detected page type on every group member
	for _, member := range members {
		member.ItemType = analysis.PageType
		if err := s.stagedStorage.SaveItem(member); err != nil {
			s.logger.Warn().
				Err(err).
				Str("job_id", jobID).
				Str("url", member.URL).
				Msg("Failed to record item type")
		}
	}

	return rule, nil
}
