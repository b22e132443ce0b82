// Package core provides the business logic for spreadsheet reconciliation imports.
//
// A hand-maintained workbook (or CSV export of one) is reconciled against a
// record store: rows are matched to existing records by a natural key and
// either update them or create new ones. The package is independent of any
// transport; the HTTP server, the CLI and the tests all drive it through
// [Service] or [Importer].
//
// # Profiles
//
// An import [Profile] is registered at init time using [Register]. It names
// the primary collection, its natural key attribute, the header aliases of
// the sheet and how each attribute is coerced:
//
//	core.Register(core.Profile{
//	    Key:        "projects",
//	    Collection: "projects",
//	    KeyAttr:    "name",
//	    Columns: []core.Column{
//	        {Header: "Nom", Attribute: "name"},
//	        {Header: "CAS", Attribute: "cas"},
//	    },
//	    Attributes: []core.AttributeSpec{
//	        {Name: "name", Kind: core.KindText},
//	        {Name: "cas", Kind: core.KindNumeric},
//	    },
//	})
//
// # Run Flow
//
//  1. [ReadSource] turns the file into a [Sheet] of typed cells
//  2. [MapHeaders] binds the header row to the profile; a missing key column aborts
//  3. Each row is normalized (text, numbers, dates, enum codes)
//  4. References are resolved by find-or-create through a [Resolver]
//  5. The primary record is created or updated by its natural key
//
// The whole run shares one store transaction and every row runs in its own
// savepoint. A failing row is rolled back alone and reported in the
// [Result]; the other rows are unaffected.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DB001-DB007: Database errors (duplicates, constraints, connections)
//   - IMP001-IMP002: Import errors (missing key column, unknown profile)
//   - FILE001-FILE006: File errors (size, format, empty file)
//   - UPL001-UPL005: Run errors (cancelled, busy, not found, timeout)
package core
