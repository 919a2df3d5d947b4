package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/engram/note"
)

func TestCompileFilter(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{name: "empty expression", expr: ""},
		{name: "tag membership", expr: `tags.exists(t, t == "incident")`},
		{name: "content substring", expr: `content.contains("outage")`},
		{name: "keyword membership", expr: `"dns" in keywords`},
		{name: "compound", expr: `content.contains("db") && tags.exists(t, t == "prod")`},
		{name: "syntax error", expr: `tags.exists(`, wantErr: true},
		{name: "unknown variable", expr: `severity > 3`, wantErr: true},
		{name: "non-boolean result", expr: `content`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := CompileFilter(tt.expr)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidFilter)
				return
			}
			require.NoError(t, err)
			if tt.expr == "" {
				assert.Nil(t, f)
			} else {
				assert.NotNil(t, f)
			}
		})
	}
}

func TestFilterMatches(t *testing.T) {
	incident := &note.Note{
		Content:     "postgres primary failed over during the outage window",
		Description: "database incident from the march outage",
		Keywords:    []string{"postgres", "failover"},
		Tags:        []string{"incident", "prod"},
	}
	design := &note.Note{
		Content:  "proposal for the new retry budget in the ingest path",
		Keywords: []string{"retry", "ingest"},
		Tags:     []string{"design"},
	}

	tests := []struct {
		name string
		expr string
		note *note.Note
		want bool
	}{
		{name: "tag hit", expr: `tags.exists(t, t == "incident")`, note: incident, want: true},
		{name: "tag miss", expr: `tags.exists(t, t == "incident")`, note: design, want: false},
		{name: "content hit", expr: `content.contains("outage")`, note: incident, want: true},
		{name: "content miss", expr: `content.contains("outage")`, note: design, want: false},
		{name: "keyword in list", expr: `"failover" in keywords`, note: incident, want: true},
		{name: "description hit", expr: `description.contains("march")`, note: incident, want: true},
		{name: "empty description", expr: `description.contains("march")`, note: design, want: false},
		{name: "compound both sides", expr: `content.contains("postgres") && tags.exists(t, t == "prod")`, note: incident, want: true},
		{name: "compound one side", expr: `content.contains("postgres") && tags.exists(t, t == "prod")`, note: design, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := CompileFilter(tt.expr)
			require.NoError(t, err)

			got, err := f.Matches(tt.note)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNilFilterMatchesEverything(t *testing.T) {
	var f *Filter
	got, err := f.Matches(&note.Note{Content: "anything"})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestFilterHandlesEmptyLists(t *testing.T) {
	f, err := CompileFilter(`tags.exists(t, t == "x")`)
	require.NoError(t, err)

	got, err := f.Matches(&note.Note{Content: "no tags at all"})
	require.NoError(t, err)
	assert.False(t, got)
}
