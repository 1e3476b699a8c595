package projectfile

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// node is a generic element of the project document. The format is a tree
// of small elements whose tag names carry the field names, so it is read
// into a tree first and interpreted by the version loaders after.
type node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []*node    `xml:",any"`
}

func newNode(name string) *node {
	return &node{XMLName: xml.Name{Local: name}}
}

func (n *node) name() string { return n.XMLName.Local }

func (n *node) attr(key string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == key {
			return a.Value, true
		}
	}
	return "", false
}

func (n *node) setAttr(key, value string) {
	n.Attrs = append(n.Attrs, xml.Attr{Name: xml.Name{Local: key}, Value: value})
}

func (n *node) add(c *node) *node {
	n.Children = append(n.Children, c)
	return c
}

// child returns the first direct child with the given tag name.
func (n *node) child(name string) *node {
	for _, c := range n.Children {
		if c.name() == name {
			return c
		}
	}
	return nil
}

func (n *node) all(name string) []*node {
	var ret []*node
	for _, c := range n.Children {
		if c.name() == name {
			ret = append(ret, c)
		}
	}
	return ret
}

// Type tags of stored values. They are the names the format has always
// used, so older files stay readable.
const (
	typeInt    = "int"
	typeFloat  = "float"
	typeBool   = "bool"
	typeNone   = "NoneType"
	typeString = "str"
)

// setValue stores v in the attributes typeAttr and valueAttr of n.
func (n *node) setValue(v any, typeAttr, valueAttr string) {
	var t, s string
	switch v := v.(type) {
	case nil:
		t, s = typeNone, "None"
	case int:
		t, s = typeInt, strconv.Itoa(v)
	case float64:
		t, s = typeFloat, formatFloat(v)
	case float32:
		t, s = typeFloat, formatFloat(float64(v))
	case bool:
		t, s = typeBool, "False"
		if v {
			s = "True"
		}
	case string:
		t, s = typeString, v
	default:
		t, s = typeString, fmt.Sprint(v)
	}
	n.setAttr(typeAttr, t)
	n.setAttr(valueAttr, s)
}

// value reads back a value stored with setValue. Values of unknown type
// are returned as strings.
func (n *node) value(typeAttr, valueAttr string) (any, error) {
	t, _ := n.attr(typeAttr)
	s, _ := n.attr(valueAttr)
	switch t {
	case typeInt:
		i, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("<%s> %s: %w", n.name(), valueAttr, err)
		}
		return i, nil
	case typeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("<%s> %s: %w", n.name(), valueAttr, err)
		}
		return f, nil
	case typeBool:
		return s == "True", nil
	case typeNone:
		return nil, nil
	}
	return s, nil
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// params is an ordered set of named, typed values: the content of a
// Parameters element.
type params struct {
	names  []string
	values map[string]any
}

func (p *params) set(name string, v any) {
	if p.values == nil {
		p.values = map[string]any{}
	}
	if _, ok := p.values[name]; !ok {
		p.names = append(p.names, name)
	}
	p.values[name] = v
}

func (p *params) node() *node {
	ret := newNode("Parameters")
	for _, name := range p.names {
		c := ret.add(newNode(name))
		c.setValue(p.values[name], "type", "value")
	}
	return ret
}

func readParams(n *node) (*params, error) {
	p := &params{}
	for _, c := range n.Children {
		v, err := c.value("type", "value")
		if err != nil {
			return nil, err
		}
		p.set(c.name(), v)
	}
	return p, nil
}

// The getters leave *dst untouched when the value is missing or has an
// incompatible type.

func (p *params) getString(name string, dst *string) {
	switch v := p.values[name].(type) {
	case string:
		*dst = v
	case int:
		*dst = strconv.Itoa(v)
	}
}

func (p *params) getInt(name string, dst *int) {
	switch v := p.values[name].(type) {
	case int:
		*dst = v
	case float64:
		*dst = int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func (p *params) getFloat(name string, dst *float64) {
	switch v := p.values[name].(type) {
	case float64:
		*dst = v
	case int:
		*dst = float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func (p *params) getBool(name string, dst *bool) {
	if v, ok := p.values[name].(bool); ok {
		*dst = v
	}
}

// quoteNotes encodes free text so that newlines and tabs survive attribute
// normalization. The result is a quoted literal.
func quoteNotes(s string) string {
	return strconv.Quote(s)
}

// unquoteNotes decodes a double or single quoted literal. Anything that is
// not a literal is returned unchanged.
func unquoteNotes(s string) string {
	if len(s) < 2 {
		return s
	}
	switch {
	case s[0] == '"' && s[len(s)-1] == '"':
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	case s[0] == '\'' && s[len(s)-1] == '\'':
		var b strings.Builder
		b.WriteByte('"')
		inner := s[1 : len(s)-1]
		for i := 0; i < len(inner); i++ {
			switch c := inner[i]; {
			case c == '\\' && i+1 < len(inner):
				if inner[i+1] == '\'' {
					b.WriteByte('\'')
				} else {
					b.WriteByte(c)
					b.WriteByte(inner[i+1])
				}
				i++
			case c == '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(c)
			}
		}
		b.WriteByte('"')
		if u, err := strconv.Unquote(b.String()); err == nil {
			return u
		}
	}
	return s
}
