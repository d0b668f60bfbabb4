package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Recipe is a user-owned record addressed by (Owner, Title).
//
// The wire format is a flat JSON object:
//
//	{
//	  "id": "cs1k2...",
//	  "user_email": "a@x.com",
//	  "title": "Soup",
//	  "note": "less salt",
//	  "recipe": { ...any JSON... },
//	  "created_at": "2024-05-01T10:00:00Z",
//	  "servings": 4            <- unknown fields are kept verbatim
//	}
//
// Clients may send any object. id, user_email and created_at are always
// set by the server, so values for them in a request body are dropped.
type Recipe struct {
	ID        string
	Owner     string
	Title     string
	Note      string
	Content   json.RawMessage // the "recipe" field; nil when absent
	Extra     map[string]json.RawMessage
	CreatedAt time.Time
}

// reserved fields are mapped to struct fields and never land in Extra.
var reservedRecipeFields = map[string]bool{
	"id":         true,
	"_id":        true,
	"user_email": true,
	"title":      true,
	"note":       true,
	"recipe":     true,
	"created_at": true,
}

// ErrRecipeFieldType is returned when title or note is not a JSON string.
var ErrRecipeFieldType = errors.New("model: title and note must be strings")

// UnmarshalJSON reads a client-supplied recipe object.
func (r *Recipe) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("model: recipe must be a JSON object")
	}

	var decoded Recipe
	if raw, ok := fields["title"]; ok {
		if err := decodeOptionalString(raw, &decoded.Title); err != nil {
			return fmt.Errorf("title: %w", err)
		}
	}
	if raw, ok := fields["note"]; ok {
		if err := decodeOptionalString(raw, &decoded.Note); err != nil {
			return fmt.Errorf("note: %w", err)
		}
	}
	if raw, ok := fields["recipe"]; ok && !isJSONNull(raw) {
		decoded.Content = append(json.RawMessage(nil), raw...)
	}

	for k, v := range fields {
		if reservedRecipeFields[k] {
			continue
		}
		if decoded.Extra == nil {
			decoded.Extra = make(map[string]json.RawMessage)
		}
		decoded.Extra[k] = append(json.RawMessage(nil), v...)
	}

	*r = decoded
	return nil
}

// MarshalJSON writes the flat wire format. Server fields win over extras
// with the same name.
func (r Recipe) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+6)
	for k, v := range r.Extra {
		out[k] = v
	}
	out["id"] = r.ID
	out["user_email"] = r.Owner
	out["title"] = r.Title
	if r.Note != "" {
		out["note"] = r.Note
	}
	if len(r.Content) > 0 {
		out["recipe"] = r.Content
	}
	out["created_at"] = r.CreatedAt.UTC()
	return json.Marshal(out)
}

// RecipePatch is a partial update. A nil Note or a nil Content means the
// field was not supplied.
type RecipePatch struct {
	Note    *string
	Content json.RawMessage
}

// HasNote reports whether the patch carries a non-empty note.
func (p RecipePatch) HasNote() bool {
	return p.Note != nil && *p.Note != ""
}

// HasContent reports whether the patch carries recipe content. JSON null
// and the empty string count as absent.
func (p RecipePatch) HasContent() bool {
	c := bytes.TrimSpace(p.Content)
	return len(c) > 0 && !isJSONNull(c) && string(c) != `""`
}

// IsEmpty reports whether applying the patch would change nothing.
func (p RecipePatch) IsEmpty() bool {
	return !p.HasNote() && !p.HasContent()
}

func decodeOptionalString(raw json.RawMessage, dst *string) error {
	if isJSONNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return ErrRecipeFieldType
	}
	return nil
}

func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
