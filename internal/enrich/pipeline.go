package enrich

import (
	"context"
	"strings"

	"github.com/mgpai22/chitra/internal/config"
	"github.com/mgpai22/chitra/internal/logging"
	"github.com/mgpai22/chitra/internal/transcript"
)

// turns a sentence into a short visual search phrase; "" means no suggestion
type Suggester interface {
	Suggest(ctx context.Context, sentence string) (string, error)
}

// finds an image URL for a query; "" means no hit
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// snapshot published after every status transition
type Progress struct {
	Index    int
	Segments []transcript.Segment
	Images   Images
	Done     bool
}

type Publisher func(Progress)

type Pipeline struct {
	suggester Suggester
	searcher  Searcher
	logger    *logging.Logger
}

type Option func(*Pipeline)

func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New fails with a configuration error when either service is missing.
func New(suggester Suggester, searcher Searcher, opts ...Option) (*Pipeline, error) {
	if suggester == nil {
		return nil, &config.CredentialError{Service: "suggestion"}
	}
	if searcher == nil {
		return nil, &config.CredentialError{Service: "image search"}
	}

	p := &Pipeline{
		suggester: suggester,
		searcher:  searcher,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run enriches segments one at a time, in index order. The input slice is
// not modified. Suggestion and search failures are recorded on the segment
// and never abort the run; only ctx cancellation stops it early, in which
// case the partial result is returned with ctx.Err().
func (p *Pipeline) Run(
	ctx context.Context,
	segments []transcript.Segment,
	publish Publisher,
) ([]transcript.Segment, Images, error) {
	segs := transcript.CloneAll(segments)
	images := make(Images)

	emit := func(i int, done bool) {
		if publish == nil {
			return
		}
		publish(Progress{
			Index:    i,
			Segments: transcript.CloneAll(segs),
			Images:   images.Clone(),
			Done:     done,
		})
	}

	for i := range segs {
		segs[i].FetchStatus = transcript.StatusIdle
		segs[i].VisualQuery = ""
	}

	for i := range segs {
		if err := ctx.Err(); err != nil {
			return segs, images, err
		}
		if err := p.enrichOne(ctx, i, segs, images, emit); err != nil {
			return segs, images, err
		}
	}

	p.logger.Infow("Enrichment complete",
		"segments", len(segs),
		"images", len(images),
	)
	emit(len(segs)-1, true)
	return segs, images, nil
}

func (p *Pipeline) enrichOne(
	ctx context.Context,
	i int,
	segs []transcript.Segment,
	images Images,
	emit func(int, bool),
) error {
	seg := &segs[i]

	if strings.TrimSpace(seg.Text) == "" {
		seg.FetchStatus = transcript.StatusNoImageFound
		emit(i, false)
		return nil
	}

	seg.FetchStatus = transcript.StatusSuggesting
	emit(i, false)

	query, err := p.suggester.Suggest(ctx, seg.Text)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		p.logger.Warnw("Keyword suggestion failed",
			"segment", i,
			"error", err,
		)
		query = ""
	}
	query = strings.TrimSpace(query)

	if query == "" {
		seg.FetchStatus = transcript.StatusNoImageFound
		emit(i, false)
		return nil
	}

	seg.VisualQuery = query
	seg.FetchStatus = transcript.StatusFetching
	emit(i, false)

	url, err := p.searcher.Search(ctx, query)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		p.logger.Warnw("Image search failed",
			"segment", i,
			"query", query,
			"error", err,
		)
		url = ""
	}

	if url == "" {
		seg.FetchStatus = transcript.StatusFailedFetch
		emit(i, false)
		return nil
	}

	images[i] = &ImageRecord{SourceURL: url, DisplayURL: url}
	seg.FetchStatus = transcript.StatusFetched
	p.logger.Debugw("Image fetched",
		"segment", i,
		"query", query,
		"url", url,
	)
	emit(i, false)
	return nil
}
