package model

type Credentials struct {
	Identifier string
	Password   string
}

type SignupProfile struct {
	Email     string
	Mobile    string
	Password  string
	FirstName string
	LastName  string
}

// пароль запрашиваем последним и сразу отправляем, в сессию он не попадает
type SignupDraft struct {
	Email     string
	Mobile    string
	FirstName string
	LastName  string
}
