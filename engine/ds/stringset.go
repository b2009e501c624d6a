package ds

// StringSet is a set of strings
type StringSet map[string]bool

// Contains checks if the set contains the specified elem
func (ss StringSet) Contains(elem string) bool {
	return ss[elem]
}

// Add adds the elem to the set
func (ss StringSet) Add(elem string) {
	ss[elem] = true
}

// Remove removes the elem from the set
func (ss StringSet) Remove(elem string) {
	delete(ss, elem)
}

// Copy returns a new set containing the same elems
func (ss StringSet) Copy() StringSet {
	cp := make(StringSet, len(ss))
	for elem := range ss {
		cp[elem] = true
	}
	return cp
}

// ToList converts the set to a string slice
func (ss StringSet) ToList() []string {
	list := make([]string, 0, len(ss))
	for elem := range ss {
		list = append(list, elem)
	}
	return list
}
