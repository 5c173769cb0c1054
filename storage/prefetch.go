// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package storage

// Prefetch names one eager-load instruction: either a single relation or an
// ordered chain of relations traversed left to right. Build instructions
// with Single() or Chain(); the zero value loads nothing.
//
// Without prefetching, accessing a relation on every record of a list
// result triggers one storage round-trip per record. A prefetch plan
// collapses these into a fixed number of queries executed together with
// the list query itself.
type Prefetch struct {
	chain []string
}

// Single creates an eager-load instruction for one relation.
func Single(relation string) Prefetch {
	return Prefetch{chain: []string{relation}}
}

// Chain creates a nested eager-load instruction. Each subsequent relation
// is loaded within the previous one, e.g. Chain("human", "cars") loads the
// pet's human and that human's cars.
func Chain(relations ...string) Prefetch {
	return Prefetch{chain: relations}
}

// Relations returns the relation names of this instruction in traversal order.
func (p Prefetch) Relations() []string {
	return p.chain
}
