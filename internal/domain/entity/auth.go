package entity

// Tokens пара JWT, выданная /api/token/.
type Tokens struct {
	Access  string `json:"access" yaml:"access"`
	Refresh string `json:"refresh" yaml:"refresh"`
}

// Valid сообщает, что токен доступа есть.
func (t Tokens) Valid() bool {
	return t.Access != ""
}

// Credentials логин и пароль оператора.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
