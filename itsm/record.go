package itsm

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Item is one unit of adapter output. JSON holds the record as a raw JSON
// document so that field order survives the round trip; Binary is set only
// by attachment downloads. Input is the index of the originating input
// item, so the host can pair outputs with inputs.
type Item struct {
	JSON     string
	Binary   []byte
	FileName string
	MimeType string
	Input    int
}

// Get reads a path out of the item's JSON document.
func (it Item) Get(path string) gjson.Result {
	return gjson.Get(it.JSON, path)
}

// successItem is the output of mutation endpoints that return no body,
// e.g. delete and link operations: a success marker, a status message and
// the identifiers that were acted on.
func successItem(input int, message string, ids ...member) Item {
	members := []member{
		{"success", "true"},
		{"message", mustJSONString(message)},
	}
	members = append(members, ids...)
	return Item{JSON: buildObject(members), Input: input}
}

// errorItem is the continue-on-fail representation of a failed input.
func errorItem(input int, detail ErrorDetail) Item {
	members := []member{{"error", mustJSONString(detail.Message)}}
	switch len(detail.Description) {
	case 0:
	case 1:
		members = append(members, member{"details", mustJSONString(detail.Description[0])})
	default:
		parts := make([]string, len(detail.Description))
		for i, d := range detail.Description {
			parts[i] = mustJSONString(d)
		}
		members = append(members, member{"details", "[" + strings.Join(parts, ",") + "]"})
	}
	return Item{JSON: buildObject(members), Input: input}
}

type member struct {
	key string
	raw string
}

func buildObject(members []member) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			b.WriteByte(',')
		}
		key, _ := json.Marshal(m.key)
		b.Write(key)
		b.WriteByte(':')
		b.WriteString(m.raw)
	}
	b.WriteByte('}')
	return b.String()
}

func mustJSONString(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

// NormalizeRecord shapes one dataset record for output: the OData context
// annotation is dropped, RecId is promoted to the first position, and the
// remaining fields either keep the order the tenant sent them in or are
// sorted alphabetically when sortKeys is set. The result is a compact JSON
// object. Non-object inputs pass through as they arrived.
func NormalizeRecord(record gjson.Result, sortKeys bool) string {
	if !record.IsObject() {
		return record.Raw
	}
	var recID *member
	var rest []member
	record.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if name == "@odata.context" {
			return true
		}
		if name == "RecId" {
			recID = &member{name, value.Raw}
			return true
		}
		rest = append(rest, member{name, value.Raw})
		return true
	})
	if sortKeys {
		sortMembers(rest)
	}
	members := rest
	if recID != nil {
		members = append([]member{*recID}, rest...)
	}
	return buildObject(members)
}

func sortMembers(members []member) {
	// Insertion sort; records have at most a few hundred fields.
	for i := 1; i < len(members); i++ {
		for j := i; j > 0 && members[j].key < members[j-1].key; j-- {
			members[j], members[j-1] = members[j-1], members[j]
		}
	}
}

// StripNullValues removes null-valued fields from the document and every
// nested object, preserving the order of the surviving fields. Nulls
// inside arrays are kept: positions in arrays are meaningful.
func StripNullValues(raw string) string {
	parsed := gjson.Parse(raw)
	return stripNulls(parsed)
}

func stripNulls(value gjson.Result) string {
	switch {
	case value.IsObject():
		var members []member
		value.ForEach(func(key, v gjson.Result) bool {
			if v.Type == gjson.Null {
				return true
			}
			members = append(members, member{key.String(), stripNulls(v)})
			return true
		})
		return buildObject(members)
	case value.IsArray():
		var b strings.Builder
		b.WriteByte('[')
		first := true
		value.ForEach(func(_, v gjson.Result) bool {
			if !first {
				b.WriteByte(',')
			}
			first = false
			if v.Type == gjson.Null {
				b.WriteString("null")
			} else {
				b.WriteString(stripNulls(v))
			}
			return true
		})
		b.WriteByte(']')
		return b.String()
	default:
		return value.Raw
	}
}
