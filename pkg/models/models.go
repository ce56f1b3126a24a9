package models

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&User{},
		&Content{},
		&DownloadRecord{},
		&StorageQuota{},
		&Rating{},
		&Favorite{},
		&Notification{},
		&SupportTicket{},
	}
}
