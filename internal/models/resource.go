package models

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ResourceType names one of the fixed domain categories managed by the console.
type ResourceType string

const (
	ResourceYearGroups    ResourceType = "year-groups"
	ResourceSubjects      ResourceType = "subjects"
	ResourceActivities    ResourceType = "activities"
	ResourceInterventions ResourceType = "interventions"
	ResourceTests         ResourceType = "tests"
	ResourceUsers         ResourceType = "users"
	ResourceImports       ResourceType = "imports"
)

var resourceTypes = []ResourceType{
	ResourceYearGroups,
	ResourceSubjects,
	ResourceActivities,
	ResourceInterventions,
	ResourceTests,
	ResourceUsers,
}

// ParseResourceType resolves a path segment into a CRUD-managed resource type.
func ParseResourceType(raw string) (ResourceType, bool) {
	candidate := ResourceType(strings.ToLower(strings.TrimSpace(raw)))
	for _, t := range resourceTypes {
		if t == candidate {
			return t, true
		}
	}
	return "", false
}

// Path returns the backend collection path for the type.
func (t ResourceType) Path() string {
	return "/" + string(t)
}

// Resource is a domain record as returned by the backend. Relational references
// (e.g. an activity's subject) arrive embedded in Fields and are read-only here.
type Resource struct {
	ID     string
	Fields map[string]interface{}
}

// MarshalJSON flattens the identifier back into the field map.
func (r Resource) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	return json.Marshal(out)
}

// UnmarshalJSON accepts any JSON object and extracts "id" (string or number).
func (r *Resource) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("resource must be a JSON object")
	}
	r.ID = ""
	if raw, ok := fields["id"]; ok && raw != nil {
		r.ID = fmt.Sprint(raw)
	} else if raw, ok := fields["_id"]; ok && raw != nil {
		r.ID = fmt.Sprint(raw)
	}
	delete(fields, "id")
	r.Fields = fields
	return nil
}

// Field returns a field value as a string, or "" when absent.
func (r Resource) Field(name string) string {
	v, ok := r.Fields[name]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Filter maps filter keys to selected values. Empty values impose no constraint.
type Filter map[string]string

// Normalize drops empty values and trims whitespace, returning a new filter.
func (f Filter) Normalize() Filter {
	out := make(Filter, len(f))
	for k, v := range f {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Canonical renders the normalized filter as sorted, URL-encoded pairs.
func (f Filter) Canonical() string {
	n := f.Normalize()
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(n[k]))
	}
	return strings.Join(parts, "&")
}

// Hash identifies the filter by value; equal filters hash equally regardless of map identity.
func (f Filter) Hash() string {
	sum := sha1.Sum([]byte(f.Canonical()))
	return hex.EncodeToString(sum[:])
}

// Values converts the normalized filter into query parameters.
func (f Filter) Values() url.Values {
	values := url.Values{}
	for k, v := range f.Normalize() {
		values.Set(k, v)
	}
	return values
}

// FilterFromQuery builds a filter from request query parameters, keeping the first value.
func FilterFromQuery(query url.Values) Filter {
	f := make(Filter, len(query))
	for k, vs := range query {
		if len(vs) == 0 {
			continue
		}
		f[k] = vs[0]
	}
	return f.Normalize()
}
