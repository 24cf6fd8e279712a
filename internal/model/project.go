package model

import "time"

// Project is a backup producer. Agents authenticate against its webhook
// token; AllowedIPs optionally restricts where uploads may come from.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	WebhookToken string    `json:"webhook_token"`
	AllowedIPs   *string   `json:"allowed_ips,omitempty"`
	CategoryID   *string   `json:"category_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
