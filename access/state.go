package access

import "github.com/jrsteele09/go-auth-gateway/users"

// State is where a caller stands in MFA enrollment.
type State int

const (
	NoSession State = iota
	SessionNoMFA
	MFAPending
	MFAEnabled
)

func (s State) String() string {
	switch s {
	case SessionNoMFA:
		return "session_no_mfa"
	case MFAPending:
		return "mfa_pending"
	case MFAEnabled:
		return "mfa_enabled"
	default:
		return "no_session"
	}
}

// StateOf derives the state of user. nil and anonymous users have no session.
func StateOf(user *users.User) State {
	switch {
	case user.IsAnonymous():
		return NoSession
	case user.MFAPending:
		return MFAPending
	case user.MFAEnabled:
		return MFAEnabled
	default:
		return SessionNoMFA
	}
}

// Locked reports whether the state withholds everything but MFA setup.
func (s State) Locked() bool {
	return s == SessionNoMFA || s == MFAPending
}
