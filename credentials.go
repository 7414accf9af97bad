package authcore

import "regexp"

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// IsEmail reports whether identifier is syntactically an email address.
func IsEmail(identifier string) bool {
	return emailRegex.MatchString(identifier)
}

// IdentifierFilter builds the lookup used by local authentication: by email
// when identifier looks like one, by username otherwise.
func IdentifierFilter(identifier string) UserFilter {
	f := UserFilter{Provider: ProviderLocal, WithPassports: true, WithRoles: true}
	if IsEmail(identifier) {
		f.Email = identifier
	} else {
		f.Username = identifier
	}
	return f
}

// RegisterParams is the attribute set accepted by Registration.Register.
// Attributes not covered by a field land in Extra and are kept on the user's profile.
// Locale and template are always the registration defaults.
type RegisterParams struct {
	Username string
	Email    string
	Password string
	Extra    map[string]any
}

// RegisterParamsFromMap splits a decoded request body into RegisterParams.
// Provider, lang and template are dropped; registration sets them itself.
func RegisterParamsFromMap(attrs map[string]any) RegisterParams {
	var p RegisterParams
	str := func(k string) string {
		s, _ := attrs[k].(string)
		return s
	}
	p.Username = str("username")
	p.Email = str("email")
	p.Password = str("password")
	for k, v := range attrs {
		switch k {
		case "username", "email", "password", "lang", "template", "provider", "id", "roles", "passports":
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]any)
		}
		p.Extra[k] = v
	}
	return p
}
