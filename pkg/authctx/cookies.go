package authctx

import "strings"

// Cookie is one captured session cookie.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
}

// CookieHeader serializes cookies into a single Cookie header value,
// "name=value; name2=value2", in input order. Cookies without a name are
// dropped.
func CookieHeader(cookies []Cookie) string {
	var b strings.Builder
	for _, c := range cookies {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(c.Value)
	}
	return b.String()
}
