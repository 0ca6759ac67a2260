package models

import "strings"

// Account is a mailbox the monitor signs into. Credentials are never serialized.
type Account struct {
	Address    string `yaml:"email" json:"email"`
	Credential string `yaml:"password" json:"-"`
}

func (a Account) Domain() string {
	if i := strings.LastIndex(a.Address, "@"); i >= 0 {
		return a.Address[i+1:]
	}
	return ""
}

// Masked returns the address with most of the local part hidden, for logs.
func (a Account) Masked() string {
	i := strings.LastIndex(a.Address, "@")
	if i <= 0 {
		return a.Address
	}
	local := a.Address[:i]
	if len(local) <= 2 {
		return local[:1] + "***" + a.Address[i:]
	}
	return local[:2] + "***" + a.Address[i:]
}
