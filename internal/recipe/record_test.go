package recipe

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFields() map[string]any {
	return map[string]any{
		"recipe_name": "Chicken & leek pie",
		"ingredients": []map[string]string{
			{"ingredient": "500g chicken thighs"},
			{"ingredient": "2 leeks"},
		},
		"nutritional_info": []map[string]string{},
	}
}

func TestItemIDIsDerivedFromURL(t *testing.T) {
	a, err := NewRecord("https://www.bbcgoodfood.com/recipes/chicken-leek-pie", sampleFields(), nil)
	require.NoError(t, err)
	b, err := NewRecord("https://www.bbcgoodfood.com/recipes/chicken-leek-pie/", sampleFields(), nil)
	require.NoError(t, err)

	assert.Equal(t, "chicken-leek-pie", a.ItemID)
	assert.Equal(t, a.ItemID, b.ItemID)
	assert.NotEqual(t, a.ItemUUID, b.ItemUUID)
	assert.NotEqual(t, uuid.Nil, a.ItemUUID)
	assert.Equal(t, []string{}, a.ImageURLs)
}

func TestNewRecordErrors(t *testing.T) {
	_, err := NewRecord("https://www.bbcgoodfood.com/", sampleFields(), nil)
	assert.Error(t, err)

	_, err = NewRecord("https://www.bbcgoodfood.com/recipes/x", map[string]any{"item_id": "y"}, nil)
	assert.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	r, err := NewRecord("https://www.bbcgoodfood.com/recipes/chicken-leek-pie", sampleFields(),
		[]string{"https://images.example.com/pie.jpg?quality=90&resize=440"})
	require.NoError(t, err)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"item_uuid":"`+r.ItemUUID.String()+`"`)

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	if diff := cmp.Diff(r, &back); diff != "" {
		t.Fatalf("record changed during round trip (-want +got):\n%s", diff)
	}

	var batch []*Record
	data, err = json.Marshal([]*Record{r, r})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &batch))
	assert.Len(t, batch, 2)
}

func TestFromMap(t *testing.T) {
	r, err := FromMap(map[string]any{
		"item_id":     "pie",
		"recipe_name": "Pie",
		"subtitle":    nil,
		"method":      []any{map[string]any{"method_step": "STEP 1", "method_instructions": "Bake."}},
	})
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, r.ItemUUID)
	assert.Equal(t, "Pie", r.Text("recipe_name"))
	assert.Equal(t, "", r.Text("subtitle"))
	assert.Equal(t, []map[string]string{{"method_step": "STEP 1", "method_instructions": "Bake."}}, r.List("method"))

	tests := []map[string]any{
		{"recipe_name": "no id"},
		{"item_id": "pie", "item_uuid": "not-a-uuid"},
		{"item_id": "pie", "servings": 4.0},
		{"item_id": "pie", "method": []any{"STEP 1"}},
		{"item_id": "pie", "image_urls": []any{1.0}},
	}
	for _, m := range tests {
		_, err := FromMap(m)
		assert.Error(t, err, "%v", m)
	}
}
