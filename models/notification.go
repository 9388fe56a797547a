package models

import (
	"time"
)

type MailTemplate struct {
	Name string         `bson:"name" json:"name"`
	Data map[string]any `bson:"data" json:"data"`
}

// Mail is a queue document picked up by the external mailer.
type Mail struct {
	To        string       `bson:"to" json:"to"`
	Template  MailTemplate `bson:"template" json:"template"`
	CreatedAt time.Time    `bson:"createdAt" json:"createdAt"`
}

type SMSRecord struct {
	ID     string    `bson:"id" json:"id"`
	To     string    `bson:"to" json:"to"`
	Text   string    `bson:"text" json:"text"`
	SentAt time.Time `bson:"sentAt" json:"sentAt"`
}
