// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package crud turns storage-backed entity types into REST collection and
resource endpoints with per-user access control and declarative eager
loading.

Entity types are plain structs registered with a storage.Type descriptor.
Access control is declared by implementing capability interfaces from the
access package on the struct; the views detect them on the descriptor's
prototype.

Setup

An Extension carries the shared state: the storage session, the principal
resolver and the access-check master switch. It is built once at startup:

	ext := crud.New(&crud.Builder{
		Session:             store,
		GetPrincipal:        core.PrincipalFromContext,
		AccessChecksEnabled: true,
	})

	router := mux.NewRouter()
	ext.Handle(router, "pet",
		ext.Collection(crud.CollectionConfig{
			Model:       petType,
			ListEnabled: true,
			Prefetch: []storage.Prefetch{
				storage.Single("human"),
				storage.Chain("human", "cars"),
			},
		}),
		ext.Resource(crud.ResourceConfig{
			Model:      petType,
			GetEnabled: true,
			KeyAttr:    "extid",
		}),
	)

This serves the routes

	GET  /pets
	POST /pets
	GET  /pets/{key}
	PATCH /pets/{key}
	DELETE /pets/{key}

where each verb answers 405 unless its flag is switched on.

Enforcement order

Every operation enforces the same fixed order: method gate, then lookup,
then authorization, and only then any mutation. A disabled method answers
405 even for a key that does not exist; a denied mutation leaves no trace
in the store.

Listing is governed by scoping alone: the type's QueryForUser returns the
records the principal may see, or access.Deny. A type that implements
scoping is always listed through its scoping query, even when access
checks are switched off. Single-resource operations
fetch first and then check the instance rule, so a foreign record answers
403. Keyed lookups through GetForCurrentUserOr404 go through scoping
instead and answer 404 for absent and scoped-out records alike.

A type that takes part in access-checked endpoints without implementing the
required capability is misconfigured: that is answered with 500 and a log
entry, never with a 4xx that a client could mistake for a policy decision.
*/
package crud
