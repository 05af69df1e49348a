package dom

import (
	"errors"
	"testing"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/locator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const htmlString = `
<html>
<head>
	<script type="application/ld+json">{"@type": "Recipe", "name": "Chicken pie", "totalTime": "PT1H"}</script>
	<script type="application/ld+json">{ broken</script>
</head>
<body>
	<div class="post recipe" id="main">
		<h1 class="heading-1">  Chicken
			pie </h1>
		<p class="empty"></p>
		<ul>
			<li class="list-item">500g chicken</li>
			<li class="list-item">1 onion</li>
			<li class="list-item">Puff <b>pastry</b></li>
		</ul>
		<table>
			<tr class="kv"><td class="key">kcal</td><td class="value">420</td></tr>
			<tr class="kv"><td class="key">fat</td><td class="value">12g</td></tr>
		</table>
		<img class="image__img" src="https://images.example.com/pie.jpg?quality=90" alt="">
		<script>var ignored = "not text";</script>
	</div>
</body>
</html>`

func parseFixture(t *testing.T) *Document {
	t.Helper()
	doc, err := ParseString(htmlString, "https://www.example.com/recipes/chicken-pie")
	require.NoError(t, err)
	return doc
}

func TestFindOneStrategies(t *testing.T) {
	doc := parseFixture(t)
	tests := []struct {
		loc      locator.Locator
		expected string
	}{
		{locator.ByXPath("//div[(@class='post recipe')]//h1[(@class='heading-1')]"), "Chicken pie"},
		{locator.ByCSS("div.recipe h1"), "Chicken pie"},
		{locator.ByTag("h1"), "Chicken pie"},
		{locator.MustNew(locator.ID, "main"), "Chicken pie 500g chicken 1 onion Puff pastry kcal 420 fat 12g"},
		{locator.MustNew(locator.Class, "heading-1"), "Chicken pie"},
		{locator.MustNew(locator.JSONLD, "//name"), "Chicken pie"},
		{locator.MustNew(locator.JSONLD, "//totalTime"), "PT1H"},
	}
	for _, tt := range tests {
		n, err := FindOne(doc.Root(), tt.loc)
		require.NoError(t, err, tt.loc.String())
		text, err := TextOf(n)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, text, tt.loc.String())
	}
}

func TestFindOneNotFound(t *testing.T) {
	doc := parseFixture(t)
	_, err := FindOne(doc.Root(), locator.ByCSS("section.method"))
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestFindManyKeepsDocumentOrder(t *testing.T) {
	doc := parseFixture(t)
	nodes, err := FindMany(doc.Root(), locator.ByCSS("li.list-item"))
	require.NoError(t, err)
	var texts []string
	for _, n := range nodes {
		text, err := TextOf(n)
		require.NoError(t, err)
		texts = append(texts, text)
	}
	assert.Equal(t, []string{"500g chicken", "1 onion", "Puff pastry"}, texts)
}

func TestFindManyEmpty(t *testing.T) {
	doc := parseFixture(t)
	nodes, err := FindMany(doc.Root(), locator.ByXPath("//section[(@class='nutrition')]//tr"))
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestFindRelativeToContext(t *testing.T) {
	doc := parseFixture(t)
	rows, err := FindMany(doc.Root(), locator.ByCSS("tr.kv"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	key, err := FindOne(rows[1], locator.ByXPath("./td[(@class='key')]"))
	require.NoError(t, err)
	text, err := TextOf(key)
	require.NoError(t, err)
	assert.Equal(t, "fat", text)

	// css is evaluated below the context node only
	_, err = FindOne(rows[1], locator.ByCSS("h1"))
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestTextOfEmptyElement(t *testing.T) {
	doc := parseFixture(t)
	n, err := FindOne(doc.Root(), locator.ByCSS("p.empty"))
	require.NoError(t, err)
	text, err := TextOf(n)
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestAttributeOf(t *testing.T) {
	doc := parseFixture(t)
	img, err := FindOne(doc.Root(), locator.ByCSS("img.image__img"))
	require.NoError(t, err)

	src, ok, err := AttributeOf(img, "src")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://images.example.com/pie.jpg?quality=90", src)

	alt, ok, err := AttributeOf(img, "alt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", alt)

	_, ok, err = AttributeOf(img, "title")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaleNodes(t *testing.T) {
	doc := parseFixture(t)
	h1, err := FindOne(doc.Root(), locator.ByTag("h1"))
	require.NoError(t, err)

	doc.Invalidate()
	assert.True(t, doc.Stale())

	_, err = TextOf(h1)
	assert.ErrorIs(t, err, ErrStaleElement)
	assert.True(t, errors.Is(err, ErrElementNotFound), "stale elements count as not found")

	_, _, err = AttributeOf(h1, "class")
	assert.ErrorIs(t, err, ErrStaleElement)

	_, err = FindMany(doc.Root(), locator.ByTag("li"))
	assert.ErrorIs(t, err, ErrStaleElement)
}
