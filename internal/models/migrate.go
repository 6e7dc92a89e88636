package models

// All lists every model the schema is migrated from.
func All() []any {
	return []any{
		&Organization{},
		&Student{},
		&Driver{},
		&Bus{},
		&Route{},
		&Stop{},
		&Payment{},
		&BusLocation{},
		&Trip{},
		&Scan{},
		&RealtimeEntry{},
	}
}
