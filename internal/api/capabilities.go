package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Capability is one catalog entry.
type Capability struct {
	Name              string   `json:"-" yaml:"name"`
	Description       string   `json:"description" yaml:"description"`
	PracticeArea      string   `json:"practice_area" yaml:"practice_area"`
	SkillLevels       []string `json:"skill_levels,omitempty" yaml:"skill_levels,omitempty"`
	Certifications    []string `json:"certifications,omitempty" yaml:"certifications,omitempty"`
	IndustryVerticals []string `json:"industry_verticals" yaml:"industry_verticals"`
	Capacity          float64  `json:"capacity" yaml:"capacity"` // hours per week
	Consultants       []string `json:"consultants" yaml:"consultants"`
}

// Catalog is the capability map keyed by name, in the order the registry
// sent it.
type Catalog struct {
	names []string
	items map[string]Capability
}

// NewCatalog builds a catalog from capabilities in the given order. A later
// entry with a repeated name replaces the earlier one in place.
func NewCatalog(caps ...Capability) *Catalog {
	c := &Catalog{items: make(map[string]Capability, len(caps))}
	for _, cp := range caps {
		c.put(cp)
	}
	return c
}

func (c *Catalog) put(cp Capability) {
	if c.items == nil {
		c.items = make(map[string]Capability)
	}
	if _, exists := c.items[cp.Name]; !exists {
		c.names = append(c.names, cp.Name)
	}
	if cp.Consultants == nil {
		cp.Consultants = []string{}
	}
	if cp.IndustryVerticals == nil {
		cp.IndustryVerticals = []string{}
	}
	c.items[cp.Name] = cp
}

// Len returns the number of capabilities.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

// Names returns capability names in catalog order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Get looks a capability up by name.
func (c *Catalog) Get(name string) (Capability, bool) {
	if c == nil {
		return Capability{}, false
	}
	cp, ok := c.items[name]
	return cp, ok
}

// All returns the capabilities in catalog order.
func (c *Catalog) All() []Capability {
	if c == nil {
		return nil
	}
	out := make([]Capability, 0, len(c.names))
	for _, n := range c.names {
		out = append(out, c.items[n])
	}
	return out
}

// UnmarshalJSON decodes the name -> capability object token by token so the
// backend's key order survives.
func (c *Catalog) UnmarshalJSON(data []byte) error {
	return c.decode(bytes.NewReader(data))
}

func (c *Catalog) decode(r io.Reader) error {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("catalog: expected object, got %v", tok)
	}

	*c = Catalog{items: make(map[string]Capability)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("catalog: expected capability name, got %v", tok)
		}

		var cp Capability
		if err := dec.Decode(&cp); err != nil {
			return fmt.Errorf("catalog: capability %q: %w", name, err)
		}
		cp.Name = name
		c.put(cp)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalJSON encodes the catalog as an object in catalog order.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.Names() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.items[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MutationResult is the body of a successful register or unregister.
type MutationResult struct {
	Message        string `json:"message"`
	RegisteredBy   string `json:"registered_by,omitempty"`
	UnregisteredBy string `json:"unregistered_by,omitempty"`
}

// ListCapabilities fetches the whole catalog.
func (c *Client) ListCapabilities(ctx context.Context) (*Catalog, error) {
	resp, err := c.doRequest(ctx, request{method: http.MethodGet, path: "/capabilities"})
	if err != nil {
		return nil, err
	}

	catalog := &Catalog{}
	if err := parseResponse(resp, catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}

// Register adds email to the named capability.
func (c *Client) Register(ctx context.Context, capability, email string) (*MutationResult, error) {
	r := request{
		method: http.MethodPost,
		path:   capabilityPath(capability, "register"),
	}
	if c.profile.RegisterUsesBody() {
		body, err := jsonBody(map[string]string{"email": email})
		if err != nil {
			return nil, err
		}
		r.body = body
		r.contentType = "application/json"
	} else {
		r.query = url.Values{"email": {email}}
	}

	return c.mutate(ctx, r)
}

// Unregister removes email from the named capability.
func (c *Client) Unregister(ctx context.Context, capability, email string) (*MutationResult, error) {
	return c.mutate(ctx, request{
		method: http.MethodDelete,
		path:   capabilityPath(capability, "unregister"),
		query:  url.Values{"email": {email}},
	})
}

func (c *Client) mutate(ctx context.Context, r request) (*MutationResult, error) {
	resp, err := c.doRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	var result MutationResult
	if err := parseResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// capabilityPath escapes name as a single path segment, so names such as
// "UX/UI Design" stay one segment.
func capabilityPath(name, action string) string {
	return "/capabilities/" + url.PathEscape(name) + "/" + action
}
