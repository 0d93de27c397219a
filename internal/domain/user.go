package domain

type User struct {
	ID           int32  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	DisplayKey   string `json:"display_key"`
	CreatedOn    string `json:"created_on"`
}
