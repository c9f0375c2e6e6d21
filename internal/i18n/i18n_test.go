package i18n

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/buddy/internal/identity"
)

const enDoc = `{
	"a": {"b": "English B"},
	"home": {"title": "Hello"},
	"gratitude_screen": {"fallback_tasks": ["One", "Two", 3]},
	"reflections_screen": {"feeling_mood": "Feeling {mood}"}
}`

func writeLocales(t *testing.T, docs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for lang, doc := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, lang+".json"), []byte(doc), 0o644))
	}
	return dir
}

func loaded(t *testing.T, docs map[string]string) *Resolver {
	t.Helper()
	r := NewResolver()
	err := NewLoader(DirSource{Dir: writeLocales(t, docs)}, zerolog.Nop()).Load(context.Background(), r)
	require.NoError(t, err)
	return r
}

func TestResolve_BeforeLoad(t *testing.T) {
	r := NewResolver()
	assert.False(t, r.Loaded())
	assert.Equal(t, "Fallback", r.Resolve(identity.English, "home.title", "Fallback"))
	assert.Equal(t, "home.title", r.Resolve(identity.English, "home.title"))
}

func TestResolve_FallbackChain(t *testing.T) {
	r := loaded(t, map[string]string{"en": enDoc, "mk": `{"home": {"title": "Здраво"}}`, "tr": `{}`})

	assert.Equal(t, "Fallback", r.Resolve(identity.Macedonian, "missing.key", "Fallback"))
	assert.Equal(t, "missing.key", r.Resolve(identity.Macedonian, "missing.key"))
	assert.Equal(t, "English B", r.Resolve("", "a.b"), "unset language walks English")
	assert.Equal(t, "Здраво", r.Resolve(identity.Macedonian, "home.title"))
	assert.Equal(t, "a.b", r.Resolve(identity.Turkish, "a.b"), "no cross-language fallback")
	assert.Equal(t, "x", r.Resolve(identity.English, "", "x"))
	assert.Equal(t, "", r.Resolve(identity.English, ""))
	assert.Equal(t, "home.title.deeper", r.Resolve(identity.English, "home.title.deeper"))
	assert.Equal(t, "home.subtitle", r.Resolve(identity.English, "home.subtitle", ""), "empty fallback behaves like none")
}

func TestResolve_ReturnsShapesUncoerced(t *testing.T) {
	r := loaded(t, map[string]string{"en": enDoc, "mk": `{}`, "tr": `{}`})

	list, ok := r.Resolve(identity.English, "gratitude_screen.fallback_tasks").([]any)
	require.True(t, ok)
	assert.Len(t, list, 3)

	m, ok := r.Resolve(identity.English, "home").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Hello", m["title"])

	assert.Equal(t, []string{"One", "Two"}, r.Strings(identity.English, "gratitude_screen.fallback_tasks"))
	assert.Nil(t, r.Strings(identity.English, "home.title"))
	assert.Equal(t, "fb", r.String(identity.English, "home", "fb"))
}

func TestLoad_AnyFailurePavesAllLanguages(t *testing.T) {
	// mk.json missing: en must not survive either.
	dir := writeLocales(t, map[string]string{"en": enDoc, "tr": `{}`})
	r := NewResolver()
	err := NewLoader(DirSource{Dir: dir}, zerolog.Nop()).Load(context.Background(), r)
	assert.Error(t, err)
	assert.True(t, r.Loaded())
	assert.Equal(t, "a.b", r.Resolve(identity.English, "a.b"))

	select {
	case <-r.Ready():
	default:
		t.Fatal("ready channel should be closed after a failed load")
	}
}

func TestLoad_MalformedDocument(t *testing.T) {
	dir := writeLocales(t, map[string]string{"en": enDoc, "mk": `{`, "tr": `{}`})
	r := NewResolver()
	err := NewLoader(DirSource{Dir: dir}, zerolog.Nop()).Load(context.Background(), r)
	assert.Error(t, err)
	assert.Equal(t, "Fallback", r.Resolve(identity.English, "a.b", "Fallback"))
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/locales/en.json":
			w.Write([]byte(enDoc))
		case "/locales/mk.json", "/locales/tr.json":
			w.Write([]byte(`{}`))
		default:
			http.NotFound(w, req)
		}
	}))
	defer srv.Close()

	r := NewResolver()
	err := NewLoader(NewHTTPSource(srv.URL+"/locales/"), zerolog.Nop()).Load(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "English B", r.Resolve(identity.English, "a.b"))
}

type failingSource struct{}

func (failingSource) Fetch(context.Context, identity.Language) ([]byte, error) {
	return nil, errors.New("network down")
}

func TestLoad_SourceError(t *testing.T) {
	r := NewResolver()
	err := NewLoader(failingSource{}, zerolog.Nop()).Load(context.Background(), r)
	assert.ErrorContains(t, err, "network down")
	assert.Equal(t, "F", r.Resolve(identity.Macedonian, "home.title", "F"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "Feeling happy, calm", Format("Feeling {mood}", map[string]string{"mood": "happy, calm"}))
	assert.Equal(t, "Cycle 2 of 3", Format("Cycle {cycle} of {total}", map[string]string{"cycle": "2", "total": "3"}))
	assert.Equal(t, "plain", Format("plain", nil))
}
