package cypher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFencedScript(t *testing.T) {
	script := "```cypher\nCREATE (p:Product {name: 'Widget'});\nCREATE (v:Vendor {name: 'Acme'});\n```"

	statements := Normalize(script)
	require.Len(t, statements, 2)
	assert.Equal(t, "CREATE (p:Product {name: 'Widget'})", statements[0])
	assert.Equal(t, "CREATE (v:Vendor {name: 'Acme'})", statements[1])
}

func TestNormalizeStripsComments(t *testing.T) {
	script := `// create the product
CREATE (p:Product {name: 'Widget'}); /* vendor next */
CREATE (v:Vendor {name: 'Acme'});`

	statements := Normalize(script)
	require.Len(t, statements, 2)
	assert.NotContains(t, statements[0], "//")
	assert.NotContains(t, statements[1], "/*")
}

func TestSplitRespectsStringLiterals(t *testing.T) {
	script := `CREATE (p:Product {desc: 'part a; part b'}); CREATE (q:Product {desc: "x;y"});`

	statements := Normalize(script)
	require.Len(t, statements, 2)
	assert.Contains(t, statements[0], "part a; part b")
	assert.Contains(t, statements[1], `"x;y"`)
}

func TestCommentMarkersInsideStrings(t *testing.T) {
	script := `CREATE (p:Page {url: 'https://example.com/a'});`

	statements := Normalize(script)
	require.Len(t, statements, 1)
	assert.Contains(t, statements[0], "https://example.com/a")
}

func TestEnsureReturn(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "dangling match gains return",
			in:   "MATCH (p:Product {name: 'Widget'})",
			want: "MATCH (p:Product {name: 'Widget'}) RETURN *",
		},
		{
			name: "match with return untouched",
			in:   "MATCH (p:Product) RETURN p",
			want: "MATCH (p:Product) RETURN p",
		},
		{
			name: "match feeding merge untouched",
			in:   "MATCH (p:Product) MERGE (p)-[:MADE_BY]->(:Vendor {name: 'Acme'})",
			want: "MATCH (p:Product) MERGE (p)-[:MADE_BY]->(:Vendor {name: 'Acme'})",
		},
		{
			name: "create untouched",
			in:   "CREATE (p:Product)",
			want: "CREATE (p:Product)",
		},
		{
			name: "keyword as identifier substring still gains return",
			in:   "MATCH (r:Returns_Dept)",
			want: "MATCH (r:Returns_Dept) RETURN *",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EnsureReturn(tc.in))
		})
	}
}

func TestNormalizeEmptyScript(t *testing.T) {
	assert.Nil(t, Normalize(""))
	assert.Nil(t, Normalize("```cypher\n```"))
	assert.Nil(t, Normalize("// nothing here\n;;;"))
}
