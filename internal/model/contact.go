package model

// ContactForm 是联系表单提交的字段。
type ContactForm struct {
	Name    string `json:"name" form:"name"`
	Email   string `json:"email" form:"email"`
	Message string `json:"message" form:"message"`
}

// 联系表单失败的类别，只用于决定 HTTP 状态码。
const (
	ContactInvalid     = "invalid"
	ContactUnavailable = "unavailable"
)

// ContactResult 是联系表单的处理结果，直接返回给前端。
type ContactResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"-"`
}

// ContactSubmission 对应 contact_submissions 表。
type ContactSubmission struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string    `gorm:"type:varchar(255);not null" json:"name"`
	Email            string    `gorm:"type:varchar(255);not null;index" json:"email"`
	Message          string    `gorm:"type:text;not null" json:"message"`
	NotificationSent bool      `gorm:"not null;default:false" json:"notificationSent"`
	ConfirmationSent bool      `gorm:"not null;default:false" json:"confirmationSent"`
	CreatedAt        LocalTime `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ContactSubmission) TableName() string {
	return "contact_submissions"
}
