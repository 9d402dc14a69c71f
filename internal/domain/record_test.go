package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/guildcrawl/internal/domain"
)

func TestGuildIDFromLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		link string
		want string
	}{
		{"relative link", "/server/1234567890", "1234567890"},
		{"absolute link", "https://disboard.org/server/42", "42"},
		{"trailing slash", "/server/42/", "42"},
		{"query string", "/server/42?ref=listing", "42"},
		{"bare id", "42", "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, domain.GuildIDFromLink(tt.link))
		})
	}
}

func TestServerRecord_TagsJSONPreservesOrder(t *testing.T) {
	t.Parallel()

	rec := domain.ServerRecord{Tags: []domain.Tag{{ID: "39", Name: "anime"}, {ID: "3", Name: "gaming"}}}

	got, err := rec.TagsJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"39":"anime"},{"3":"gaming"}]`, got)
	assert.Equal(t, `[{"39":"anime"},{"3":"gaming"}]`, got)
}

func TestServerRecord_TagsJSONEmpty(t *testing.T) {
	t.Parallel()

	got, err := domain.ServerRecord{}.TagsJSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", got)
}

func TestRequest_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	orig := domain.NewRequest("https://disboard.org/servers", 10, domain.SourceSeed)
	clone := orig.Clone()
	clone.Meta[domain.MetaSource] = domain.SourceRetry
	clone.Priority = 0

	assert.Equal(t, domain.SourceSeed, orig.Source())
	assert.Equal(t, 10, orig.Priority)
	assert.Equal(t, "GET", clone.HTTPMethod())
}
