// Package recipe holds the record assembled for every scraped detail page.
package recipe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/utils"
	"github.com/google/uuid"
)

const (
	KeyItemID    = "item_id"
	KeyItemUUID  = "item_uuid"
	KeyImageURLs = "image_urls"
	KeyURL       = "url"
)

// Record is one recipe. Fields holds the extracted values keyed by the page
// definition: strings for scalars and []map[string]string for lists.
type Record struct {
	ItemID    string
	ItemUUID  uuid.UUID
	URL       string
	Fields    map[string]any
	ImageURLs []string
}

// ItemIDFromURL returns the last path segment of pageURL. The same url
// always yields the same id.
func ItemIDFromURL(pageURL string) (string, error) {
	id, err := utils.LastPathSegment(pageURL)
	if err != nil {
		return "", fmt.Errorf("no item id in url: %w", err)
	}
	return id, nil
}

// NewRecord assembles a record with a fresh uuid.
func NewRecord(pageURL string, fields map[string]any, imageURLs []string) (*Record, error) {
	id, err := ItemIDFromURL(pageURL)
	if err != nil {
		return nil, err
	}
	for _, k := range []string{KeyItemID, KeyItemUUID, KeyImageURLs, KeyURL} {
		if _, ok := fields[k]; ok {
			return nil, fmt.Errorf("field key '%s' is reserved", k)
		}
	}
	if imageURLs == nil {
		imageURLs = []string{}
	}
	return &Record{
		ItemID:    id,
		ItemUUID:  uuid.New(),
		URL:       pageURL,
		Fields:    fields,
		ImageURLs: imageURLs,
	}, nil
}

// Text returns the scalar field key or "".
func (r *Record) Text(key string) string {
	s, _ := r.Fields[key].(string)
	return s
}

// List returns the list field key or nil.
func (r *Record) List(key string) []map[string]string {
	l, _ := r.Fields[key].([]map[string]string)
	return l
}

// Map returns the flat representation used in json files.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		m[k] = v
	}
	m[KeyItemID] = r.ItemID
	m[KeyItemUUID] = r.ItemUUID.String()
	m[KeyURL] = r.URL
	images := r.ImageURLs
	if images == nil {
		images = []string{}
	}
	m[KeyImageURLs] = images
	return m
}

// MarshalJSON keeps '&' and friends unescaped since image urls carry query
// strings.
func (r *Record) MarshalJSON() ([]byte, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(r.Map()); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buffer.Bytes(), "\n"), nil
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	rec, err := FromMap(m)
	if err != nil {
		return err
	}
	*r = *rec
	return nil
}

// FromMap rebuilds a record from its decoded json representation.
func FromMap(m map[string]any) (*Record, error) {
	id, ok := m[KeyItemID].(string)
	if !ok || id == "" {
		return nil, errors.New("record has no item_id")
	}
	r := &Record{ItemID: id, Fields: map[string]any{}, ImageURLs: []string{}}
	if s, ok := m[KeyItemUUID].(string); ok {
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		r.ItemUUID = u
	}
	r.URL, _ = m[KeyURL].(string)
	if images, ok := m[KeyImageURLs].([]any); ok {
		for _, img := range images {
			s, ok := img.(string)
			if !ok {
				return nil, fmt.Errorf("record %s: image url %v is not a string", id, img)
			}
			r.ImageURLs = append(r.ImageURLs, s)
		}
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch k {
		case KeyItemID, KeyItemUUID, KeyURL, KeyImageURLs:
			continue
		}
		v, err := fieldValue(m[k])
		if err != nil {
			return nil, fmt.Errorf("record %s field '%s': %w", id, k, err)
		}
		r.Fields[k] = v
	}
	return r, nil
}

func fieldValue(v any) (any, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	case []any:
		items := make([]map[string]string, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("list item %v is not an object", item)
			}
			entry := make(map[string]string, len(obj))
			for k, val := range obj {
				s, ok := val.(string)
				if !ok {
					return nil, fmt.Errorf("value of '%s' is not a string", k)
				}
				entry[k] = s
			}
			items = append(items, entry)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", v)
	}
}
