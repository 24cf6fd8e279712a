package request

type CreateProject struct {
	Name        string  `json:"name" validate:"required,max=128"`
	Description *string `json:"description" validate:"omitempty,max=1024"`
	AllowedIPs  string  `json:"allowed_ips"`
}
