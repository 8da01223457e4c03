package models

// All lists every persisted entity for AutoMigrate.
func All() []any {
	return []any{
		&Account{},
		&Client{},
		&Template{},
		&TemplateSection{},
		&Document{},
		&LineItem{},
		&DocumentSnapshot{},
		&NumberCounter{},
		&EmailEvent{},
		&ViewEvent{},
	}
}
