package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/ingest-logs/app/ingestion"
)

type stubAdapter struct{ name string }

func (s stubAdapter) ProviderName() string            { return s.name }
func (s stubAdapter) SupportedSourceTypes() []string  { return []string{"csv_file"} }
func (s stubAdapter) ValidateSource(ingestion.Source, string) (bool, string) { return true, "" }
func (s stubAdapter) Ingest(ingestion.Source, ingestion.IngestOptions, func(ingestion.Record) error) error {
	return nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := New()
	r.Register("Universal", func() Adapter { return stubAdapter{name: "universal"} })

	a, err := r.Get("universal")
	require.NoError(t, err)
	assert.Equal(t, "universal", a.ProviderName())

	// lookup is case-insensitive
	a, err = r.Get("UNIVERSAL")
	require.NoError(t, err)
	assert.Equal(t, "universal", a.ProviderName())
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := New()
	r.Register("universal", func() Adapter { return stubAdapter{name: "universal"} })
	r.Register("fastly", func() Adapter { return stubAdapter{name: "fastly"} })

	_, err := r.Get("nonexistent")
	require.Error(t, err)
	var notFound *ingestion.ProviderNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{"fastly", "universal"}, notFound.AvailableProviders)
}

func TestRegistry_OverwriteIsIdempotent(t *testing.T) {
	r := New()
	r.Register("universal", func() Adapter { return stubAdapter{name: "first"} })
	r.Register("universal", func() Adapter { return stubAdapter{name: "second"} })

	a, err := r.Get("universal")
	require.NoError(t, err)
	assert.Equal(t, "second", a.ProviderName())
}

func TestRegistry_List(t *testing.T) {
	r := New()
	r.Register("fastly", func() Adapter { return stubAdapter{name: "fastly"} })
	r.Register("akamai", func() Adapter { return stubAdapter{name: "akamai"} })
	assert.Equal(t, []string{"akamai", "fastly"}, r.List())
}

func TestRegistry_IsRegistered(t *testing.T) {
	r := New()
	r.Register("fastly", func() Adapter { return stubAdapter{name: "fastly"} })
	assert.True(t, r.IsRegistered("fastly"))
	assert.False(t, r.IsRegistered("akamai"))
}
