package models

import "time"

// Message is a direct message between two users.
type Message struct {
	Base
	SenderUID    string    `gorm:"column:sender_uid;type:text;not null;index:idx_messages_pair,priority:1"`
	RecipientUID string    `gorm:"column:recipient_uid;type:text;not null;index:idx_messages_pair,priority:2"`
	Body         string    `gorm:"column:body;type:text;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}
