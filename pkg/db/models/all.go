package models

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&PublicProfile{},
		&CreatorVerification{},
		&BlockEdge{},
		&FollowRequest{},
		&FollowEdge{},
		&Media{},
		&Post{},
		&Comment{},
		&Like{},
		&Message{},
		&Report{},
		&Contract{},
		&Dispute{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
