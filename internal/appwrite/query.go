package appwrite

import "encoding/json"

// Query is a single database query clause, serialised as JSON in the
// queries[] request parameter.
type Query struct {
	Method    string `json:"method"`
	Attribute string `json:"attribute,omitempty"`
	Values    []any  `json:"values,omitempty"`
}

// Equal matches documents whose attribute equals any of values.
func Equal(attribute string, values ...any) Query {
	return Query{Method: "equal", Attribute: attribute, Values: values}
}

// Search runs a full-text match against attribute.
func Search(attribute, value string) Query {
	return Query{Method: "search", Attribute: attribute, Values: []any{value}}
}

// OrderDesc sorts by attribute, newest/largest first.
func OrderDesc(attribute string) Query {
	return Query{Method: "orderDesc", Attribute: attribute}
}

// OrderAsc sorts by attribute, oldest/smallest first.
func OrderAsc(attribute string) Query {
	return Query{Method: "orderAsc", Attribute: attribute}
}

// Limit bounds the number of returned documents.
func Limit(n int) Query {
	return Query{Method: "limit", Values: []any{n}}
}

// CursorAfter continues a listing after the document with the given id.
func CursorAfter(documentID string) Query {
	return Query{Method: "cursorAfter", Values: []any{documentID}}
}

// String returns the wire form of q.
func (q Query) String() string {
	data, err := json.Marshal(q)
	if err != nil {
		return ""
	}
	return string(data)
}
