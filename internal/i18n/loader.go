package i18n

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	perrors "github.com/p-blackswan/buddy/internal/errors"
	"github.com/p-blackswan/buddy/internal/identity"
)

// Source fetches the raw JSON document of one language pack.
type Source interface {
	Fetch(ctx context.Context, lang identity.Language) ([]byte, error)
}

// HTTPSource fetches <BaseURL>/<lang>.json.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSource builds an HTTP source with a bounded client.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPSource) Fetch(ctx context.Context, lang identity.Language) ([]byte, error) {
	url := fmt.Sprintf("%s/%s.json", s.BaseURL, lang)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, perrors.NewAPIError("locales", resp.StatusCode, url)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// DirSource reads <Dir>/<lang>.json from disk.
type DirSource struct {
	Dir string
}

func (s DirSource) Fetch(_ context.Context, lang identity.Language) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.Dir, string(lang)+".json"))
}

// Loader fills a Resolver from a Source.
type Loader struct {
	source Source
	logger zerolog.Logger
}

// NewLoader creates a loader for source.
func NewLoader(source Source, logger zerolog.Logger) *Loader {
	return &Loader{
		source: source,
		logger: logger.With().Str("component", "i18n").Logger(),
	}
}

// Load fetches every language in parallel and installs the result into r.
// Any failure installs empty dictionaries for all languages; the returned
// error is informational only.
func (l *Loader) Load(ctx context.Context, r *Resolver) error {
	docs := make([]Dictionary, len(identity.Languages))

	g, gctx := errgroup.WithContext(ctx)
	for i, lang := range identity.Languages {
		g.Go(func() error {
			raw, err := l.source.Fetch(gctx, lang)
			if err != nil {
				return fmt.Errorf("%s: %w", lang, err)
			}
			var d Dictionary
			if err := json.Unmarshal(raw, &d); err != nil {
				return fmt.Errorf("%s: parse: %w", lang, err)
			}
			docs[i] = d
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		l.logger.Warn().Err(err).Msg("error loading translations, using empty dictionaries")
		r.Install(nil)
		return err
	}

	dicts := make(map[identity.Language]Dictionary, len(docs))
	for i, lang := range identity.Languages {
		dicts[lang] = docs[i]
	}
	r.Install(dicts)
	l.logger.Info().Int("languages", len(dicts)).Msg("translations loaded")
	return nil
}
