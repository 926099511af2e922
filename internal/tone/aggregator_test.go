package tone

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/convotone/internal/logstore"
	"github.com/ent0n29/convotone/internal/observability"
)

type stubAnalyzer struct {
	tones []Tone
	err   error
	texts []string
}

func (s *stubAnalyzer) Tone(_ context.Context, text string) ([]Tone, error) {
	s.texts = append(s.texts, text)
	return s.tones, s.err
}

type stubFinder struct {
	docs  map[string]logstore.Document
	err   error
	calls int
}

func (f *stubFinder) FindByConversation(_ context.Context, id string) (logstore.Document, error) {
	f.calls++
	if f.err != nil {
		return logstore.Document{}, f.err
	}
	doc, ok := f.docs[id]
	if !ok {
		return logstore.Document{}, logstore.ErrNotFound
	}
	return doc, nil
}

func TestBuildTextJoinRule(t *testing.T) {
	turns := []logstore.Turn{{InputText: "hi"}, {InputText: "how are you"}}
	assert.Equal(t, " hi.  how are you. ", BuildText(turns))
	assert.Equal(t, "", BuildText(nil))
}

func TestToneReturnsAnalyzerTones(t *testing.T) {
	finder := &stubFinder{docs: map[string]logstore.Document{
		"c1": {Conversation: "c1", Logs: []logstore.Turn{{InputText: "great"}}},
	}}
	analyzer := &stubAnalyzer{tones: []Tone{{ToneName: "Joy", ToneID: "joy", Score: 0.9}}}
	agg := NewAggregator(finder, analyzer, zerolog.Nop(), nil)

	res := agg.Tone(context.Background(), "c1")

	require.True(t, res.Configured)
	assert.Equal(t, []Tone{{ToneName: "Joy", ToneID: "joy", Score: 0.9}}, res.Tones)
	assert.Equal(t, []string{" great. "}, analyzer.texts)
}

func TestToneNotConfiguredSkipsStore(t *testing.T) {
	finder := &stubFinder{docs: map[string]logstore.Document{"c1": {Conversation: "c1"}}}
	agg := NewAggregator(finder, nil, zerolog.Nop(), nil)

	res := agg.Tone(context.Background(), "c1")

	assert.False(t, res.Configured)
	assert.False(t, agg.Configured())
	assert.Zero(t, finder.calls)
}

func TestToneFailuresBecomeEmpty(t *testing.T) {
	doc := logstore.Document{Conversation: "c1", Logs: []logstore.Turn{{InputText: "great"}}}
	cases := map[string]struct {
		finder   *stubFinder
		analyzer *stubAnalyzer
		id       string
	}{
		"analyzer error": {
			finder:   &stubFinder{docs: map[string]logstore.Document{"c1": doc}},
			analyzer: &stubAnalyzer{err: errors.New("503 service unavailable")},
			id:       "c1",
		},
		"missing conversation": {
			finder:   &stubFinder{docs: map[string]logstore.Document{}},
			analyzer: &stubAnalyzer{},
			id:       "nope",
		},
		"store error": {
			finder:   &stubFinder{err: errors.New("no reachable servers")},
			analyzer: &stubAnalyzer{},
			id:       "c1",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			agg := NewAggregator(tc.finder, tc.analyzer, zerolog.Nop(), nil)

			res := agg.Tone(context.Background(), tc.id)

			assert.True(t, res.Configured)
			require.NotNil(t, res.Tones)
			assert.Empty(t, res.Tones)
		})
	}
}

func TestToneMissingConversationDoesNotCallAnalyzer(t *testing.T) {
	analyzer := &stubAnalyzer{}
	agg := NewAggregator(&stubFinder{}, analyzer, zerolog.Nop(), nil)

	agg.Tone(context.Background(), "nope")
	assert.Empty(t, analyzer.texts)
}

func TestToneAnalyzerFailureOutcomeIsClassified(t *testing.T) {
	finder := &stubFinder{docs: map[string]logstore.Document{"c1": {Conversation: "c1"}}}
	metrics := observability.NewMetrics("test_tone_outcome")

	agg := NewAggregator(finder, &stubAnalyzer{err: &StatusError{Code: 503}}, zerolog.Nop(), metrics)
	agg.Tone(context.Background(), "c1")
	agg = NewAggregator(finder, &stubAnalyzer{err: &StatusError{Code: 401}}, zerolog.Nop(), metrics)
	agg.Tone(context.Background(), "c1")
	agg.Tone(context.Background(), "missing")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ToneRequests.WithLabelValues("analyzer_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ToneRequests.WithLabelValues("analyzer_rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ToneRequests.WithLabelValues("not_found")))
}

func TestToneDebugLogRedactsPII(t *testing.T) {
	finder := &stubFinder{docs: map[string]logstore.Document{
		"c1": {Conversation: "c1", Logs: []logstore.Turn{{InputText: "reach me at sam@example.com"}}},
	}}
	analyzer := &stubAnalyzer{}
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	NewAggregator(finder, analyzer, logger, nil).Tone(context.Background(), "c1")

	assert.Contains(t, buf.String(), "[REDACTED_EMAIL]")
	assert.NotContains(t, buf.String(), "sam@example.com")
	assert.Equal(t, []string{" reach me at sam@example.com. "}, analyzer.texts)
}
