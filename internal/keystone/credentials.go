package keystone

import (
	"encoding/json"
	"errors"

	"github.com/torosent/rampfire/internal/config"
)

// Credentials describe a password authentication scoped to a project.
// ID fields win over their name counterparts when both are set.
type Credentials struct {
	Username          string
	Password          string
	UserDomainName    string
	UserDomainID      string
	ProjectName       string
	ProjectID         string
	ProjectDomainName string
	ProjectDomainID   string
}

// CredentialsFromConfig copies the password credentials out of cfg.
func CredentialsFromConfig(cfg config.AuthConfig) Credentials {
	return Credentials{
		Username:          cfg.Username,
		Password:          cfg.Password,
		UserDomainName:    cfg.UserDomainName,
		UserDomainID:      cfg.UserDomainID,
		ProjectName:       cfg.ProjectName,
		ProjectID:         cfg.ProjectID,
		ProjectDomainName: cfg.ProjectDomainName,
		ProjectDomainID:   cfg.ProjectDomainID,
	}
}

type authRequest struct {
	Auth authBody `json:"auth"`
}

type authBody struct {
	Identity identity `json:"identity"`
	Scope    *scope   `json:"scope,omitempty"`
}

type identity struct {
	Methods  []string         `json:"methods"`
	Password passwordIdentity `json:"password"`
}

type passwordIdentity struct {
	User user `json:"user"`
}

type user struct {
	Name     string  `json:"name"`
	Domain   nameRef `json:"domain"`
	Password string  `json:"password"`
}

type scope struct {
	Project project `json:"project"`
}

type project struct {
	ID     string   `json:"id,omitempty"`
	Name   string   `json:"name,omitempty"`
	Domain *nameRef `json:"domain,omitempty"`
}

type nameRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

func ref(id, name string) nameRef {
	if id != "" {
		return nameRef{ID: id}
	}
	return nameRef{Name: name}
}

// BuildAuthBody renders the POST /v3/auth/tokens request body.
func BuildAuthBody(c Credentials) ([]byte, error) {
	if c.Username == "" {
		return nil, errors.New("keystone: username is required")
	}
	if c.UserDomainID == "" && c.UserDomainName == "" {
		return nil, errors.New("keystone: user domain name or id is required")
	}

	req := authRequest{Auth: authBody{
		Identity: identity{
			Methods: []string{"password"},
			Password: passwordIdentity{User: user{
				Name:     c.Username,
				Domain:   ref(c.UserDomainID, c.UserDomainName),
				Password: c.Password,
			}},
		},
	}}

	switch {
	case c.ProjectID != "":
		req.Auth.Scope = &scope{Project: project{ID: c.ProjectID}}
	case c.ProjectName != "":
		if c.ProjectDomainID == "" && c.ProjectDomainName == "" {
			return nil, errors.New("keystone: project domain name or id is required when scoping by project name")
		}
		domain := ref(c.ProjectDomainID, c.ProjectDomainName)
		req.Auth.Scope = &scope{Project: project{Name: c.ProjectName, Domain: &domain}}
	}

	return json.Marshal(req)
}
