package transform

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
)

// Service turns staged pages into final CMS content: extract field
// values with the content-understanding service, rewrite media and
// links, and upsert content/page/product records keyed by slug so
// re-runs never duplicate.
type Service struct {
	llm           interfaces.LLMService
	stagedStorage interfaces.StagedItemStorage
	rulesetStore  interfaces.RuleSetStorage
	contentStore  interfaces.ContentStorage
	assets        AssetStore
	registry      interfaces.JobRegistry
	logger        arbor.ILogger
}

// NewService creates the transformation engine
func NewService(llm interfaces.LLMService, stagedStorage interfaces.StagedItemStorage, rulesetStore interfaces.RuleSetStorage, contentStore interfaces.ContentStorage, assets AssetStore, registry interfaces.JobRegistry, logger arbor.ILogger) *Service {
	return &Service{
		llm:           llm,
		stagedStorage: stagedStorage,
		rulesetStore:  rulesetStore,
		contentStore:  contentStore,
		assets:        assets,
		registry:      registry,
		logger:        logger,
	}
}

// Run transforms every staged item still in crawled status that has a
// ruleset entry, checking cancellation between items. Per-item LLM
// failures log and skip; the phase only fails on storage errors.
func (s *Service) Run(ctx context.Context, job *models.ImportJob) (int, error) {
	ruleset, err := s.rulesetStore.GetRuleSet(job.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load ruleset: %w", err)
	}

	items, err := s.stagedStorage.ListByStatus(job.ID, models.ItemStatusCrawled)
	if err != nil {
		return 0, fmt.Errorf("failed to list staged items: %w", err)
	}

	origin, err := url.Parse(job.Origin)
	if err != nil {
		return 0, fmt.Errorf("invalid origin: %w", err)
	}

	transformed := 0
	for _, item := range items {
		if s.registry.IsCancelled(job.ID) {
			return transformed, interfaces.ErrCancelled
		}

		rule, ok := ruleset.Groups[item.Fingerprint]
		if !ok || rule.TemplateID == "" {
			s.logger.Debug().
				Str("job_id", job.ID).
				Str("url", item.URL).
				Msg("No ruleset entry for staged item, skipping")
			continue
		}

		if err := s.transformItem(ctx, job, item, rule, origin); err != nil {
			if err == interfaces.ErrCancelled {
				return transformed, err
			}
			s.logger.Warn().
				Err(err).
				Str("job_id", job.ID).
				Str("url", item.URL).
				Msg("Failed to transform staged item, skipping")
			continue
		}
		transformed++
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Int("transformed", transformed).
		Int("staged", len(items)).
		Msg("Transformation complete")

	return transformed, nil
}

func (s *Service) transformItem(ctx context.Context, job *models.ImportJob, item *models.StagedItem, rule *models.GroupRule, origin *url.URL) error {
	fields := fieldSpecsFor(rule)

	markdown, err := s.reduceForExtraction(item)
	if err != nil {
		return err
	}

	values, err := s.llm.ExtractFields(ctx, markdown, fields)
	if err != nil {
		return fmt.Errorf("field extraction failed: %w", err)
	}

	// Post-processing: gallery fields element-wise from the DOM, media
	// to asset copies, links to relative, then placeholder expansion
	values = s.resolveMultipleFields(item, rule, fields, values)
	for _, field := range fields {
		value := values[field.Name]
		switch field.Type {
		case string(models.RegionTypeImage):
			values[field.Name] = s.rewriteImageField(ctx, value, item.URL, job.ID, field.Multiple)
		case string(models.RegionTypeRichText):
			values[field.Name] = rewriteLinks(value, origin)
		}
	}
	values = expandPlaceholders(values)

	slug := SlugFromURL(item.URL)
	title := strings.TrimSpace(values["title"])
	if title == "" {
		title = item.Title
	}
	if title == "" {
		title = slug
	}

	contentType := contentTypeFor(rule.PageType)
	payload := make(map[string]interface{}, len(values))
	for name, value := range values {
		payload[name] = value
	}

	record := &models.ContentRecord{
		Slug:         slug,
		Title:        title,
		Type:         contentType,
		Fields:       payload,
		SourceURL:    item.URL,
		TemplateFile: rule.TemplateID,
		JobID:        job.ID,
	}
	if err := s.contentStore.SaveContent(record); err != nil {
		return fmt.Errorf("failed to save content record: %w", err)
	}

	switch contentType {
	case models.ContentTypeProduct:
		product := &models.ProductRecord{
			Slug:         slug,
			Title:        title,
			ContentSlug:  slug,
			TemplateFile: rule.TemplateID,
			JobID:        job.ID,
			Price:        strings.TrimSpace(values["price"]),
		}
		if err := s.contentStore.SaveProduct(product); err != nil {
			return fmt.Errorf("failed to save product record: %w", err)
		}
	default:
		page := &models.PageRecord{
			Slug:         slug,
			Title:        title,
			ContentSlug:  slug,
			TemplateFile: rule.TemplateID,
			JobID:        job.ID,
		}
		if err := s.contentStore.SavePage(page); err != nil {
			return fmt.Errorf("failed to save page record: %w", err)
		}
	}

	if item.Metadata == nil {
		item.Metadata = map[string]interface{}{}
	}
	item.Metadata["content_slug"] = slug
	item.Status = models.ItemStatusTransformed
	if err := s.stagedStorage.SaveItem(item); err != nil {
		return fmt.Errorf("failed to mark item transformed: %w", err)
	}

	return nil
}

// reduceForExtraction converts the item's cleaned markup to a markdown
// excerpt, cutting the token count for the extraction call
func (s *Service) reduceForExtraction(item *models.StagedItem) (string, error) {
	converter := md.NewConverter(item.URL, true, nil)
	markdown, err := converter.ConvertString(item.StrippedHTML)
	if err != nil {
		return "", fmt.Errorf("failed to reduce markup for extraction: %w", err)
	}
	return markdown, nil
}

// resolveMultipleFields re-resolves repeating fields (galleries, lists)
// element-wise against the DOM: the selector's every match contributes
// one value, which beats asking the model to enumerate them
func (s *Service) resolveMultipleFields(item *models.StagedItem, rule *models.GroupRule, fields []interfaces.FieldSpec, values map[string]string) map[string]string {
	var doc *goquery.Document
	for _, field := range fields {
		if !field.Multiple {
			continue
		}
		selector, ok := rule.Selectors[field.Name]
		if !ok {
			continue
		}
		if doc == nil {
			parsed, err := goquery.NewDocumentFromReader(strings.NewReader(item.StrippedHTML))
			if err != nil {
				s.logger.Warn().Err(err).Str("url", item.URL).Msg("Failed to parse item for multi-value fields")
				return values
			}
			doc = parsed
		}

		var parts []string
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			if field.Type == string(models.RegionTypeImage) {
				if src, ok := sel.Attr("src"); ok && src != "" {
					parts = append(parts, src)
					return
				}
			}
			if text := strings.TrimSpace(sel.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		if len(parts) > 0 {
			values[field.Name] = strings.Join(parts, "|")
		}
	}
	return values
}

// rewriteImageField sideloads one or many (|-joined) media URLs
func (s *Service) rewriteImageField(ctx context.Context, value, pageURL, jobID string, multiple bool) string {
	if value == "" {
		return value
	}
	if !multiple {
		return s.rewriteMediaValue(ctx, value, pageURL, jobID)
	}
	parts := strings.Split(value, "|")
	for i, part := range parts {
		parts[i] = s.rewriteMediaValue(ctx, strings.TrimSpace(part), pageURL, jobID)
	}
	return strings.Join(parts, "|")
}

func fieldSpecsFor(rule *models.GroupRule) []interfaces.FieldSpec {
	names := make([]string, 0, len(rule.Selectors))
	for name := range rule.Selectors {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]interfaces.FieldSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, interfaces.FieldSpec{
			Name:     name,
			Label:    models.FieldLabel(name),
			Type:     string(models.RegionTypeForField(name)),
			Multiple: models.IsMultiValueField(name),
		})
	}
	return specs
}

func contentTypeFor(pageType string) models.ContentType {
	switch pageType {
	case "product":
		return models.ContentTypeProduct
	case "article", "post", "blog":
		return models.ContentTypeArticle
	default:
		return models.ContentTypePage
	}
}
