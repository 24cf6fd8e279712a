package request

type BatchDeleteBackups struct {
	IDs []string `json:"ids" validate:"required,min=1,max=50,dive,required"`
}
