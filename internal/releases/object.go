package releases

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// object is a JSON object that keeps its keys in document order, so a
// rewritten catalog diffs cleanly against its source.
type object struct {
	keys []string
	vals map[string]json.RawMessage
}

func (o *object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	o.keys = o.keys[:0]
	o.vals = make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return err
		}
		// a repeated key keeps its first position and its last value
		o.Set(key, val)
	}
	_, err = dec.Token()
	return err
}

func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(o.vals[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *object) Get(key string) (json.RawMessage, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// Set replaces a value in place or appends a new key at the end.
func (o *object) Set(key string, val json.RawMessage) {
	if o.vals == nil {
		o.vals = make(map[string]json.RawMessage)
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = val
}

func (o *object) Delete(key string) {
	if _, ok := o.vals[key]; !ok {
		return
	}
	delete(o.vals, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// marshal encodes v without HTML escaping, as the catalog is not served inline.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// indent renders v with two-space indentation, keys in document order.
func indent(v any) ([]byte, error) {
	b, err := marshal(v)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// catalog is the parsed document plus handles on every app object, so the
// resolver edits apps and re-encodes only the layers above them.
type catalog struct {
	root    object
	systems []json.RawMessage
	osObjs  []*object
	apps    [][]json.RawMessage
	appObjs [][]*object
}

func parseCatalog(data []byte) (*catalog, error) {
	c := &catalog{}
	if err := json.Unmarshal(data, &c.root); err != nil {
		return nil, err
	}
	raw, ok := c.root.Get("operatingSystems")
	if !ok || json.Unmarshal(raw, &c.systems) != nil {
		c.systems = nil
		return c, nil
	}

	c.osObjs = make([]*object, len(c.systems))
	c.apps = make([][]json.RawMessage, len(c.systems))
	c.appObjs = make([][]*object, len(c.systems))
	for i, sys := range c.systems {
		osObj := &object{}
		if json.Unmarshal(sys, osObj) != nil {
			continue
		}
		c.osObjs[i] = osObj
		list, ok := osObj.Get("apps")
		if !ok || json.Unmarshal(list, &c.apps[i]) != nil {
			c.apps[i] = nil
			continue
		}
		c.appObjs[i] = make([]*object, len(c.apps[i]))
		for j, a := range c.apps[i] {
			app := &object{}
			if json.Unmarshal(a, app) == nil {
				c.appObjs[i][j] = app
			}
		}
	}
	return c, nil
}

// eachApp visits every app object in document order.
func (c *catalog) eachApp(fn func(app *object)) {
	for _, list := range c.appObjs {
		for _, app := range list {
			if app != nil {
				fn(app)
			}
		}
	}
}

// encode writes edited apps back through their parents and indents the result.
func (c *catalog) encode() ([]byte, error) {
	if c.systems != nil {
		for i, osObj := range c.osObjs {
			if osObj == nil || c.apps[i] == nil {
				continue
			}
			for j, app := range c.appObjs[i] {
				if app == nil {
					continue
				}
				b, err := marshal(app)
				if err != nil {
					return nil, err
				}
				c.apps[i][j] = b
			}
			list, err := marshal(c.apps[i])
			if err != nil {
				return nil, err
			}
			osObj.Set("apps", list)
			b, err := marshal(osObj)
			if err != nil {
				return nil, err
			}
			c.systems[i] = b
		}
		systems, err := marshal(c.systems)
		if err != nil {
			return nil, err
		}
		c.root.Set("operatingSystems", systems)
	}
	return indent(c.root)
}
