// Package store is the entity repository: typed, organization scoped access to
// students, drivers, buses, routes, stops and payments on top of gorm.
//
// Every query carries an org_id condition. Identifiers chosen by clients
// (student roll numbers, driver license numbers) are checked for collisions
// before anything is written; generated identifiers are UUIDv4.
//
// List returns a lazy sequence that pages through the table with keyset
// pagination, so result sets in the thousands never sit in memory at once.
// Filters are plain indexed equality/membership conditions. Matching inside a
// route's nested stop list cannot be expressed as an indexed filter; callers
// that need it scan routes with List and match in memory.
package store
