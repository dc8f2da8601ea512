package models

// Credential is the persisted authentication state of the client
type Credential struct {
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
	Role         string `yaml:"user_role"`
	Username     string `yaml:"username"`
	UserID       string `yaml:"user_id"`
}

// Credential field names as stored in durable key/value storage
const (
	FieldAccessToken  = "access_token"
	FieldRefreshToken = "refresh_token"
	FieldRole         = "user_role"
	FieldUsername     = "username"
	FieldUserID       = "user_id"
)

// CredentialFields lists every persisted field
var CredentialFields = []string{
	FieldAccessToken, FieldRefreshToken, FieldRole, FieldUsername, FieldUserID,
}

// Complete reports whether every field required for a session is present
func (c *Credential) Complete() bool {
	return c != nil &&
		c.AccessToken != "" &&
		c.RefreshToken != "" &&
		c.Role != "" &&
		c.Username != "" &&
		c.UserID != ""
}

// Fields returns the credential as a key/value set
func (c Credential) Fields() map[string]string {
	return map[string]string{
		FieldAccessToken:  c.AccessToken,
		FieldRefreshToken: c.RefreshToken,
		FieldRole:         c.Role,
		FieldUsername:     c.Username,
		FieldUserID:       c.UserID,
	}
}

// CredentialFromFields rebuilds a credential from a key/value set
func CredentialFromFields(f map[string]string) Credential {
	return Credential{
		AccessToken:  f[FieldAccessToken],
		RefreshToken: f[FieldRefreshToken],
		Role:         f[FieldRole],
		Username:     f[FieldUsername],
		UserID:       f[FieldUserID],
	}
}

// IsTokenField reports whether name is one of the token fields
func IsTokenField(name string) bool {
	return name == FieldAccessToken || name == FieldRefreshToken
}

// IsCredentialField reports whether name is a known credential field
func IsCredentialField(name string) bool {
	for _, f := range CredentialFields {
		if f == name {
			return true
		}
	}
	return false
}

// LoginResponse is the body returned by the login endpoint
type LoginResponse struct {
	Message      string `json:"message,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserRole     string `json:"user_role"`
	Username     string `json:"username"`
	UserID       string `json:"user_id"`
}

// RefreshResponse is the body returned by the refresh endpoint
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}
