package winevt

import (
	"strings"

	"github.com/pkg/errors"
)

// AuthFlag selects the RPC authentication method of a remote session.
type AuthFlag uint32

const (
	AuthDefault   AuthFlag = 0
	AuthNegotiate AuthFlag = 1
	AuthKerberos  AuthFlag = 2
	AuthNTLM      AuthFlag = 3
)

func (a AuthFlag) String() string {
	switch a {
	case AuthDefault:
		return "default"
	case AuthNegotiate:
		return "negotiate"
	case AuthKerberos:
		return "kerberos"
	case AuthNTLM:
		return "ntlm"
	}
	return "unknown"
}

// ParseAuthFlag parses one of default, negotiate, kerberos or ntlm.
func ParseAuthFlag(s string) (AuthFlag, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return AuthDefault, nil
	case "negotiate":
		return AuthNegotiate, nil
	case "kerberos":
		return AuthKerberos, nil
	case "ntlm":
		return AuthNTLM, nil
	}
	return 0, &ConfigurationError{Field: "auth flag", Value: s}
}

// Session holds the credentials used to reach a remote computer. A nil
// *Session targets the local machine.
type Session struct {
	Server   string
	Domain   string
	Username string
	Password string
	Auth     AuthFlag
}

// open acquires a remote session handle through reg. A nil session yields a
// nil guard, which the OS treats as the local machine.
func (s *Session) open(reg *Registry) (*Guard, error) {
	if s == nil {
		return nil, nil
	}
	login := RemoteLogin{
		Server:   s.Server,
		User:     s.Username,
		Domain:   s.Domain,
		Password: s.Password,
		Flags:    s.Auth,
	}
	g, err := reg.Acquire(KindSession, func() (Handle, error) {
		return reg.api.OpenSession(login)
	})
	if err != nil {
		return nil, remoteError(s.Server, err)
	}
	return g, nil
}

func remoteError(server string, err error) error {
	var oe *OsResourceError
	if errors.As(err, &oe) {
		return &RemoteConnectionError{Server: server, Code: oe.Code, Message: oe.Message}
	}
	return err
}
