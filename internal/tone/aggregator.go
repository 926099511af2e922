package tone

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/convotone/internal/logstore"
	"github.com/ent0n29/convotone/internal/observability"
	"github.com/ent0n29/convotone/internal/policy"
	"github.com/ent0n29/convotone/internal/reliability"
)

// OpAnalyze names the analyzer round trip in the latency window.
const OpAnalyze = "analyze"

// NotConfiguredMessage is returned verbatim when no analyzer is bound.
const NotConfiguredMessage = "Tone Analyzer not configured!!"

// Finder looks up the log document of one conversation.
type Finder interface {
	FindByConversation(ctx context.Context, conversationID string) (logstore.Document, error)
}

// Result of a tone request. Tones is never nil when Configured is true.
type Result struct {
	Configured bool
	Tones      []Tone
}

type Aggregator struct {
	finder   Finder
	analyzer Analyzer
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewAggregator builds an aggregator. A nil analyzer puts it in the
// not-configured mode.
func NewAggregator(finder Finder, analyzer Analyzer, logger zerolog.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{
		finder:   finder,
		analyzer: analyzer,
		logger:   logger,
		metrics:  metrics,
	}
}

func (a *Aggregator) Configured() bool { return a.analyzer != nil }

// Tone scores the concatenated user input of a conversation. Lookup and
// analyzer failures are logged and come back as an empty tone list.
func (a *Aggregator) Tone(ctx context.Context, conversationID string) Result {
	if a.analyzer == nil {
		a.metrics.ObserveTone("not_configured")
		return Result{}
	}
	log := a.logger.With().Str("conversation", conversationID).Logger()

	doc, err := a.finder.FindByConversation(ctx, conversationID)
	if errors.Is(err, logstore.ErrNotFound) {
		log.Warn().Msg("conversation not found")
		a.metrics.ObserveTone("not_found")
		return empty()
	}
	if err != nil {
		log.Error().Err(err).Msg("error while processing tone")
		a.metrics.ObserveTone("store_error")
		return empty()
	}
	log.Debug().Str("doc_id", string(doc.ID)).Msg("found conversation")

	text := BuildText(doc.Logs)
	if e := log.Debug(); e.Enabled() {
		redacted, _ := policy.RedactPII(text)
		e.Int("turns", len(doc.Logs)).Str("text", redacted).Msg("sending text to analyzer")
	}

	start := time.Now()
	tones, err := a.analyzer.Tone(ctx, text)
	a.metrics.ObserveToneAnalyzer(OpAnalyze, time.Since(start), err)
	if err != nil {
		class := reliability.Classify(err)
		log.Error().Err(err).Str("class", class).Msg("error while processing tone")
		a.metrics.ObserveTone("analyzer_" + class)
		return empty()
	}
	if tones == nil {
		tones = []Tone{}
	}
	log.Debug().Interface("tones", tones).Msg("tone result")
	a.metrics.ObserveTone("ok")
	return Result{Configured: true, Tones: tones}
}

// BuildText joins every turn's input as " <input>. " in stored order.
func BuildText(turns []logstore.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(" ")
		b.WriteString(t.InputText)
		b.WriteString(". ")
	}
	return b.String()
}

func empty() Result {
	return Result{Configured: true, Tones: []Tone{}}
}
