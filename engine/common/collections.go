package common

// StringSet is a set of strings
type StringSet map[string]struct{}

// Contains checks if Stringset contains the string
func (ss StringSet) Contains(elem string) bool {
	_, ok := ss[elem]
	return ok
}

// Add adds the string to StringSet
func (ss StringSet) Add(elem string) {
	ss[elem] = struct{}{}
}

// Remove removes the string from StringSet
func (ss StringSet) Remove(elem string) {
	delete(ss, elem)
}

// ToList convert StringSet to string slice
func (ss StringSet) ToList() []string {
	keys := make([]string, 0, len(ss))
	for s := range ss {
		keys = append(keys, s)
	}
	return keys
}
