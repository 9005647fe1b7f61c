package schemas

// Credential holds a username and password pair.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CredentialStatus reports whether stored cookies exist for a blog.
type CredentialStatus struct {
	BlogName   string `json:"blog_name"`
	HasCookies bool   `json:"has_cookies"`
	SavedAt    string `json:"saved_at,omitempty"`
}
