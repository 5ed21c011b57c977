package types

// TupleID locates one physical tuple version inside its owning version
// store. Version chains link through TupleIDs rather than raw pointers so
// versions stay relocatable and carry no lifetime ambiguity.
type TupleID uint64

// InvalidTupleID marks an unset link.
const InvalidTupleID TupleID = 0

// IsValid reports whether the id refers to a version.
func (t TupleID) IsValid() bool {
	return t != InvalidTupleID
}
