package generate

import (
	"context"
	"log/slog"

	gencode "github.com/nevindra/gencode"
)

// Option configures a Generator.
type Option func(*config)

type config struct {
	catalog     Catalog
	language    string // fence tag to extract
	tag         string
	temperature *float64
	maxTokens   *int
	guidelines  bool
	logger      *slog.Logger
	onStage     func(Request, Stage)
	tracer      gencode.Tracer
	history     Recorder
}

func defaultConfig() config {
	return config{
		catalog:    English,
		language:   "python",
		tag:        Tag,
		guidelines: true,
		logger:     gencode.NopLogger,
	}
}

// WithCatalog sets the message catalog. Default: English.
func WithCatalog(c Catalog) Option {
	return func(cfg *config) { cfg.catalog = c }
}

// WithLanguage selects the catalog by language code ("en", "zh").
func WithLanguage(lang string) Option {
	return func(cfg *config) { cfg.catalog = CatalogFor(lang) }
}

// WithTemperature sets the sampling temperature sent to the provider.
func WithTemperature(t float64) Option {
	return func(cfg *config) { cfg.temperature = &t }
}

// WithMaxTokens caps the generated response length.
func WithMaxTokens(n int) Option {
	return func(cfg *config) { cfg.maxTokens = &n }
}

// WithTag overrides the request tag. Default: Tag.
func WithTag(tag string) Option {
	return func(cfg *config) { cfg.tag = tag }
}

// WithGuidelines controls whether the runner's dialect guidelines (when it
// implements gencode.Guide) are sent as a system message. Default: true.
func WithGuidelines(enabled bool) Option {
	return func(cfg *config) { cfg.guidelines = enabled }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithStageHook registers fn to be called on every stage transition.
func WithStageHook(fn func(Request, Stage)) Option {
	return func(cfg *config) { cfg.onStage = fn }
}

// WithTracer records one span per request with an event for every stage.
func WithTracer(t gencode.Tracer) Option {
	return func(cfg *config) { cfg.tracer = t }
}

// Recorder persists finished requests. gencode.RunStore satisfies it.
type Recorder interface {
	SaveRun(ctx context.Context, run gencode.Run) error
}

// WithHistory records every request, including usage replies and
// cancellations, once it finishes.
func WithHistory(r Recorder) Option {
	return func(cfg *config) { cfg.history = r }
}
