package templates

// BaseProps contains common properties shared across all pages
type BaseProps struct {
	CSRFToken string
}

// LoginPageProps contains properties for the login page
type LoginPageProps struct {
	BaseProps
	Username string
	Error    string
	Redirect string
}

// LoggedInPageProps contains properties for the page shown to an existing session
type LoggedInPageProps struct {
	BaseProps
	Username string
	IsAdmin  bool
}
