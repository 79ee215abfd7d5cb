package refillq

// Attribute describes one value to fetch per requested key.
type Attribute struct {
	Name string
	Kind Kind
}

// FetchRequest describes which attributes an update must fetch and how to
// materialize empty result columns of the right shape. Immutable after
// construction; units constructed from the same request are independent.
type FetchRequest struct {
	attrs []Attribute
}

func NewFetchRequest(attrs ...Attribute) FetchRequest {
	cp := make([]Attribute, len(attrs))
	copy(cp, attrs)
	return FetchRequest{attrs: cp}
}

// Attributes returns the requested attributes in column order.
func (r FetchRequest) Attributes() []Attribute { return r.attrs }

// Size is the number of requested attributes.
func (r FetchRequest) Size() int { return len(r.attrs) }

// MakeResultColumns materializes one empty, correctly typed column per
// attribute, in attribute order.
func (r FetchRequest) MakeResultColumns() []*Column {
	cols := make([]*Column, len(r.attrs))
	for i, a := range r.attrs {
		cols[i] = NewColumn(a.Kind)
	}
	return cols
}
