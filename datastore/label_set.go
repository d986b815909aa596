package datastore

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
)

// LabelSet is an unordered set of labels on an address ref.
type LabelSet struct {
	elements map[string]struct{}
}

// NewLabelSet creates a set holding labels.
func NewLabelSet(labels ...string) LabelSet {
	s := LabelSet{}
	s.Add(labels...)

	return s
}

// ParseLabelSet reads a set written by String. Stored labels never contain whitespace, see
// AddressRef.Validate.
func ParseLabelSet(s string) LabelSet {
	return NewLabelSet(strings.Fields(s)...)
}

// Add inserts labels. Empty labels are ignored.
func (s *LabelSet) Add(labels ...string) {
	if s.elements == nil {
		s.elements = make(map[string]struct{}, len(labels))
	}
	for _, l := range labels {
		if l == "" {
			continue
		}
		s.elements[l] = struct{}{}
	}
}

// Contains reports whether label is in the set.
func (s LabelSet) Contains(label string) bool {
	_, ok := s.elements[label]

	return ok
}

// List returns the labels sorted.
func (s LabelSet) List() []string {
	labels := make([]string, 0, len(s.elements))
	for l := range s.elements {
		labels = append(labels, l)
	}
	slices.Sort(labels)

	return labels
}

// String joins the sorted labels with spaces.
func (s LabelSet) String() string {
	return strings.Join(s.List(), " ")
}

// Len returns the number of labels.
func (s LabelSet) Len() int {
	return len(s.elements)
}

// Equal reports whether both sets hold the same labels.
func (s LabelSet) Equal(other LabelSet) bool {
	return maps.Equal(s.elements, other.elements)
}

// Clone returns a copy of the set.
func (s LabelSet) Clone() LabelSet {
	return LabelSet{elements: maps.Clone(s.elements)}
}

// MarshalJSON writes the set as a sorted JSON array.
func (s LabelSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

// UnmarshalJSON reads a JSON array of labels.
func (s *LabelSet) UnmarshalJSON(data []byte) error {
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return err
	}
	*s = NewLabelSet(labels...)

	return nil
}
